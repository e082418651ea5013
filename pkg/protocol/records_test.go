package protocol

import (
	"errors"
	"testing"
)

func TestDecodeText(t *testing.T) {
	tests := []struct {
		in, raw, text string
	}{
		{"plain\r\n", "plain", "plain"},
		{"\x1b[1;31mred\x1b[0m text", "\x1b[1;31mred\x1b[0m text", "red text"},
		{"", "", ""},
	}
	for _, tt := range tests {
		got := DecodeText(tt.in)
		if got.Raw != tt.raw || got.Text != tt.text {
			t.Errorf("DecodeText(%q) = %+v", tt.in, got)
		}
	}
}

func TestDecodeLore(t *testing.T) {
	rec, err := DecodeLore(`<Lore name=" long sword " full="true">
		<Type>weapon</Type><Level>12</Level>
		<Flags><Flag>magic</Flag><Flag>glow</Flag></Flags>
		<Property name="damage" value="3d6"/>
		<Comment>  from the crypt  </Comment>
	</Lore>`)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Name != "long sword" || !rec.Full || rec.Kind != "weapon" || rec.Level != 12 {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Flags) != 2 || rec.Flags[1] != "glow" {
		t.Errorf("flags = %q", rec.Flags)
	}
	if len(rec.Properties) != 1 || rec.Properties[0] != (Property{Key: "damage", Value: "3d6"}) {
		t.Errorf("properties = %+v", rec.Properties)
	}
	if rec.Comment != "from the crypt" {
		t.Errorf("comment = %q", rec.Comment)
	}
}

func TestDecodeLoreErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "  ", ErrEmptyPayload},
		{"no name", `<Lore full="true"></Lore>`, ErrMissingName},
		{"truncated", `<Lore name="x">`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeLore(tt.in)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeGroup(t *testing.T) {
	g, err := DecodeGroup(`<Group>
		<Member name="Bob" hp="30" maxHp="40" leader="true" inRoom="true">
			<Affect name="bless" duration="12"/>
		</Member>
		<Member name="Ann" hp="10" maxHp="20"/>
	</Group>`)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Members) != 2 {
		t.Fatalf("members = %+v", g.Members)
	}
	bob := g.Members[0]
	if bob.Name != "Bob" || bob.HP != 30 || !bob.Leader || !bob.InRoom {
		t.Errorf("bob = %+v", bob)
	}
	if len(bob.Affects) != 1 || bob.Affects[0] != (Affect{Name: "bless", Duration: 12}) {
		t.Errorf("affects = %+v", bob.Affects)
	}

	empty, err := DecodeGroup("")
	if err != nil || len(empty.Members) != 0 {
		t.Errorf("empty group = %+v, %v", empty, err)
	}
	if _, err := DecodeGroup("<Group><Member"); err == nil {
		t.Error("malformed group accepted")
	}
}

func TestDecodeRoomMonsters(t *testing.T) {
	m, err := DecodeRoomMonsters(`<Monsters><Monster name="orc" hp="75" aggressive="true"/></Monsters>`)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Monsters) != 1 || m.Monsters[0].Name != "orc" || m.Monsters[0].HPPercent != 75 || !m.Monsters[0].Aggressive {
		t.Errorf("monsters = %+v", m.Monsters)
	}

	m, err = DecodeRoomMonsters("<Monsters/>")
	if err != nil || len(m.Monsters) != 0 {
		t.Errorf("empty room = %+v, %v", m, err)
	}
}

func TestTypeNames(t *testing.T) {
	if got := MessageRoomMonsters.String(); got != "room_monsters" {
		t.Errorf("name = %q", got)
	}
	if got := MessageType(PluginTypeBase + 3).String(); got != "message(67)" {
		t.Errorf("plugin name = %q", got)
	}
	if MessageType(PluginTypeBase).IsBuiltin() || !CommandInput.IsBuiltin() {
		t.Error("reserved range wrong")
	}
}
