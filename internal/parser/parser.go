// Package parser reads flashcard decks written in a line-oriented markdown
// format:
//
//	Q: front of the card
//	A: back of the card, possibly
//	spanning several lines
//	C: optional context
//	E: optional example, one per E: line
//	---
//
// A new Q: line or a --- separator ends the current card. Cards without a
// front are dropped.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/memorium/internal/domain"
)

type field int

const (
	noField field = iota
	frontField
	backField
	contextField
	exampleField
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", frontField},
	{"A:", backField},
	{"C:", contextField},
	{"E:", exampleField},
}

const separator = "---"

// ParseFile reads a deck file and extracts its cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open deck %s: %w", path, err)
	}
	defer file.Close()

	cards, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse deck %s: %w", path, err)
	}
	return cards, nil
}

type builder struct {
	cards   []domain.Card
	card    domain.Card
	current field
	block   []string
}

// flushField stores the lines collected for the current field.
func (b *builder) flushField() {
	text := strings.TrimSpace(strings.Join(b.block, "\n"))
	b.block = nil
	switch b.current {
	case frontField:
		b.card.Front = text
	case backField:
		b.card.Back = text
	case contextField:
		b.card.Context = text
	case exampleField:
		if text != "" {
			b.card.Examples = append(b.card.Examples, text)
		}
	}
}

func (b *builder) flushCard() {
	b.flushField()
	if b.card.Front != "" {
		b.cards = append(b.cards, b.card)
	}
	b.card = domain.Card{}
	b.current = noField
}

func (b *builder) start(f field, rest string) {
	if f == frontField && b.current != noField {
		b.flushCard()
	} else {
		b.flushField()
	}
	b.current = f
	b.block = append(b.block, strings.TrimPrefix(rest, " "))
}

// Parse reads a deck from r and extracts its cards.
func Parse(r io.Reader) ([]domain.Card, error) {
	scanner := bufio.NewScanner(r)
	var b builder

lines:
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == separator {
			b.flushCard()
			continue
		}
		for _, p := range prefixes {
			if rest, ok := strings.CutPrefix(line, p.prefix); ok {
				b.start(p.field, rest)
				continue lines
			}
		}
		if b.current != noField {
			b.block = append(b.block, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	b.flushCard()
	return b.cards, nil
}
