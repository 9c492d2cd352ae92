package setup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentials_Command(t *testing.T) {
	tests := []struct {
		creds Credentials
		want  string
	}{
		{Credentials{Action: ActionLogin, Username: "alice", Password: "secret"}, "login alice secret"},
		{Credentials{Action: ActionRegister, Username: "John Doe", Password: "p w"}, `register "John Doe" "p w"`},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.creds.Command())
			assert.NoError(t, tt.creds.Validate())
		})
	}
}

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
	}{
		{"unknown action", Credentials{Action: "logout", Username: "a", Password: "b"}},
		{"empty username", Credentials{Action: ActionLogin, Username: " ", Password: "b"}},
		{"quoted password", Credentials{Action: ActionLogin, Username: "a", Password: `b"c`}},
		{"multiline username", Credentials{Action: ActionRegister, Username: "a\nb", Password: "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.creds.Validate())
		})
	}
}
