package protocol

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

var (
	ErrEmptyPayload = errors.New("protocol: empty payload")
	ErrMissingName  = errors.New("protocol: record has no name")
)

// TextLine is one in-band line of server output.
type TextLine struct {
	Raw  string // as received, escape sequences included
	Text string // escape sequences stripped
}

// Affect is a timed buff or debuff as reported by the server. Duration is in
// seconds; a negative value means it does not expire.
type Affect struct {
	Name     string `xml:"name,attr" yaml:"name"`
	Duration int    `xml:"duration,attr" yaml:"duration"`
}

// GroupMember is one row of the group roster.
type GroupMember struct {
	Name     string   `xml:"name,attr"`
	HP       int      `xml:"hp,attr"`
	MaxHP    int      `xml:"maxHp,attr"`
	Moves    int      `xml:"mv,attr"`
	MaxMoves int      `xml:"maxMv,attr"`
	Position string   `xml:"position,attr"`
	Leader   bool     `xml:"leader,attr"`
	InRoom   bool     `xml:"inRoom,attr"`
	Affects  []Affect `xml:"Affect"`
}

// GroupStatus is the payload of MessageGroup.
type GroupStatus struct {
	XMLName xml.Name      `xml:"Group"`
	Members []GroupMember `xml:"Member"`
}

// Monster is one creature visible in the current room.
type Monster struct {
	Name       string   `xml:"name,attr"`
	HPPercent  int      `xml:"hp,attr"`
	Position   string   `xml:"position,attr"`
	Aggressive bool     `xml:"aggressive,attr"`
	Affects    []Affect `xml:"Affect"`
}

// RoomMonsters is the payload of MessageRoomMonsters.
type RoomMonsters struct {
	XMLName  xml.Name  `xml:"Monsters"`
	Monsters []Monster `xml:"Monster"`
}

// Property is a free-form key/value line of an item description.
type Property struct {
	Key   string `xml:"name,attr" yaml:"key"`
	Value string `xml:"value,attr" yaml:"value"`
}

// LoreRecord is a structured item description. Full is set when the server
// sent the complete description, as opposed to a short identification.
type LoreRecord struct {
	XMLName     xml.Name   `xml:"Lore" yaml:"-"`
	Name        string     `xml:"name,attr" yaml:"name"`
	Full        bool       `xml:"full,attr" yaml:"full"`
	Kind        string     `xml:"Type,omitempty" yaml:"kind,omitempty"`
	Level       int        `xml:"Level,omitempty" yaml:"level,omitempty"`
	Weight      int        `xml:"Weight,omitempty" yaml:"weight,omitempty"`
	Price       int        `xml:"Price,omitempty" yaml:"price,omitempty"`
	Material    string     `xml:"Material,omitempty" yaml:"material,omitempty"`
	Flags       []string   `xml:"Flags>Flag" yaml:"flags,omitempty"`
	Affects     []string   `xml:"Affects>Affect" yaml:"affects,omitempty"`
	Properties  []Property `xml:"Property" yaml:"properties,omitempty"`
	Description string     `xml:"Description,omitempty" yaml:"description,omitempty"`
	Comment     string     `xml:"Comment,omitempty" yaml:"comment,omitempty"`
}

// DecodeText builds a TextLine from one decoded line.
func DecodeText(s string) TextLine {
	s = strings.TrimRight(s, "\r\n")
	return TextLine{Raw: s, Text: ansi.Strip(s)}
}

// DecodeLore parses a <Lore> block.
func DecodeLore(s string) (LoreRecord, error) {
	var rec LoreRecord
	if strings.TrimSpace(s) == "" {
		return rec, fmt.Errorf("lore: %w", ErrEmptyPayload)
	}
	if err := xml.Unmarshal([]byte(s), &rec); err != nil {
		return LoreRecord{}, fmt.Errorf("lore: %w", err)
	}
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		return LoreRecord{}, fmt.Errorf("lore: %w", ErrMissingName)
	}
	rec.Comment = strings.TrimSpace(rec.Comment)
	return rec, nil
}

// DecodeGroup parses a <Group> block. Empty input is an empty roster.
func DecodeGroup(s string) (GroupStatus, error) {
	var g GroupStatus
	if strings.TrimSpace(s) == "" {
		return g, nil
	}
	if err := xml.Unmarshal([]byte(s), &g); err != nil {
		return GroupStatus{}, fmt.Errorf("group: %w", err)
	}
	return g, nil
}

// DecodeRoomMonsters parses a <Monsters> block. Empty input is an empty room.
func DecodeRoomMonsters(s string) (RoomMonsters, error) {
	var m RoomMonsters
	if strings.TrimSpace(s) == "" {
		return m, nil
	}
	if err := xml.Unmarshal([]byte(s), &m); err != nil {
		return RoomMonsters{}, fmt.Errorf("monsters: %w", err)
	}
	return m, nil
}
