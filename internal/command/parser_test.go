package command

import (
	"reflect"
	"testing"

	"github.com/hollowdong/chatbridge/internal/bridge"
)

func chainOf(text string) bridge.Chain {
	return bridge.Chain{bridge.Plain{Text: text}}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   bridge.Chain
		want Command
		ok   bool
	}{
		{"help", chainOf("!help"), Command{Kind: KindHelp}, true},
		{"help topic", chainOf("!help bind"), Command{Kind: KindHelp, Args: []string{"bind"}}, true},
		{"chinese help", chainOf("!帮助"), Command{Kind: KindHelp}, true},
		{"bind", chainOf("!bind"), Command{Kind: KindBind}, true},
		{"bind token", chainOf("!bind 1a2b3c"), Command{Kind: KindBind, Args: []string{"1a2b3c"}}, true},
		{"chinese bind", chainOf("!绑定 1a2b3c"), Command{Kind: KindBind, Args: []string{"1a2b3c"}}, true},
		{"fullwidth prefix", chainOf("！确认绑定"), Command{Kind: KindConfirmBind}, true},
		{"confirm", chainOf("!confirm-bind"), Command{Kind: KindConfirmBind}, true},
		{"unbind", chainOf("!unbind DC"), Command{Kind: KindUnbind, Args: []string{"DC"}}, true},
		{"chinese unbind", chainOf("!解除绑定 QQ"), Command{Kind: KindUnbind, Args: []string{"QQ"}}, true},
		{"surrounding space", chainOf("  !bind  "), Command{Kind: KindBind}, true},
		{"no prefix", chainOf("bind"), Command{}, false},
		{"unknown keyword", chainOf("!frobnicate"), Command{}, false},
		{"bare prefix", chainOf("!"), Command{}, false},
		{"empty chain", bridge.Chain{}, Command{}, false},
		{"no plain segment", bridge.Chain{bridge.AtAll{}}, Command{}, false},
		{"plain after reply", bridge.Chain{bridge.Reply{ID: "m"}, bridge.Plain{Text: "!help"}}, Command{Kind: KindHelp}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.in)
			if ok != tt.ok {
				t.Fatalf("Parse() ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.Kind != tt.want.Kind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.want.Kind)
			}
			if len(got.Args) != len(tt.want.Args) || (len(tt.want.Args) > 0 && !reflect.DeepEqual(got.Args, tt.want.Args)) {
				t.Errorf("Args = %v, want %v", got.Args, tt.want.Args)
			}
		})
	}
}
