package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashPhone(t *testing.T) {
	h1 := HashPhone("5511999990000")
	assert.Equal(t, h1, HashPhone("5511999990000"))
	assert.NotEqual(t, h1, HashPhone("5511988880000"))
	assert.Len(t, h1, 64)
}

func TestScrubPII(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"email", "meu email é joao@example.com ok", "meu email é [EMAIL] ok"},
		{"mobile", "me liga no +55 11 99999-0000", "me liga no [TELEFONE]"},
		{"landline", "fixo (11) 3456-7890", "fixo [TELEFONE]"},
		{"cpf", "cpf 123.456.789-09", "cpf [CPF]"},
		{"bill kept", "minha conta é 1.250,00", "minha conta é 1.250,00"},
		{"name kept", "sou a Marina de Campinas", "sou a Marina de Campinas"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ScrubPII(tt.input))
		})
	}
}
