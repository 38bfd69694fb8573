package cardhash

import (
	"testing"

	"github.com/conorfennell/memorium/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	card := domain.Card{
		Front:   "  Hola \r\n",
		Back:    "Hello",
		Context: "Greeting\r\nInformal",
	}
	assert.Equal(t, "hola\nhello\ngreeting\ninformal", Normalize(card))
}

func TestSum(t *testing.T) {
	t.Run("known digest", func(t *testing.T) {
		card := domain.Card{Front: "Hola", Back: "hello", Context: "GREETING"}
		assert.Equal(t, "d590fcd27a421aba66437f362c2ea11281afd773fa3bb832fb2b509463173c8f", Sum(card))
	})

	t.Run("formatting does not change identity", func(t *testing.T) {
		a := domain.Card{Front: "  what is go? ", Back: "A language."}
		b := domain.Card{Front: "What Is Go?", Back: "a language.\r\n"}
		assert.Equal(t, Sum(a), Sum(b))
	})

	t.Run("examples do not change identity", func(t *testing.T) {
		a := domain.Card{Front: "hola", Examples: []string{"hola amigo"}}
		b := domain.Card{Front: "hola"}
		assert.Equal(t, Sum(a), Sum(b))
	})

	t.Run("fields are not interchangeable", func(t *testing.T) {
		a := domain.Card{Front: "ab", Back: ""}
		b := domain.Card{Front: "a", Back: "b"}
		assert.NotEqual(t, Sum(a), Sum(b))
	})
}
