package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips punctuation and stopwords", "The Margherita Pizza (Special)! ", "margherita pizza"},
		{"lowercases", "CAESAR Salad", "caesar salad"},
		{"collapses whitespace", "  double   cheese   burger ", "double cheese burger"},
		{"drops all stopwords", "the a an and with style special", ""},
		{"keeps digits", "12 Inch", "12 inch"},
		{"folds diacritics", "Jalapeño Crème Brûlée", "jalapeno creme brulee"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, in := range []string{"The Margherita Pizza (Special)!", "pepperoni pizza", "Crêpe Suzette"} {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "normalizing %q twice must be stable", in)
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"margherita", "pizza"}, Tokenize("The Margherita Pizza!"))
	assert.Empty(t, Tokenize("  ...  "))
}

func TestBuildSignature(t *testing.T) {
	assert.Equal(t, "margherita pizza|pizza|12 inch", BuildSignature("Margherita Pizza", "Pizza", "12 Inch"))
	assert.Equal(t, "margherita pizza", BuildSignature("Margherita Pizza", "", ""))
	assert.Equal(t, "margherita pizza|large", BuildSignature("Margherita Pizza", "", "Large"))
	assert.Equal(t, "", BuildSignature("", "", ""))
}
