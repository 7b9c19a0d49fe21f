package moderation

import (
	"chat-sync/errors"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// TestModerator_Censor
// The dictionary uses specific words to avoid partial collisions (e.g., "he" inside "The")
func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	dictionary := []string{"badger", "snake", "mushroom"}
	mod, err := NewModerator(dictionary, replacementChar, log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "Simple word and space preservation",
			input:    "The badger is here",
			expected: "The ****** is here",
			words:    []string{"badger"},
		},
		{
			name:     "Multiple occurrences and preserved spacing",
			input:    "badger badger badger",
			expected: "****** ****** ******",
			words:    []string{"badger", "badger", "badger"},
		},
		{
			name: "Leet speak and internal punctuation",
			// B (index 9) . 4 . d . g . € r (index 20) -> 10 characters
			input:    "Look at B.4.d.g.€r !",
			expected: "Look at ********** !",
			words:    []string{"badger"},
		},
		{
			name:     "Uppercase and extreme noise",
			input:    "S-N-A-K-E is a B.A.D.G.E.R",
			expected: "********* is a ***********",
			words:    []string{"snake", "badger"},
		},
		{
			name:     "Accents and special characters (UTF-8)",
			input:    "Un été avec un badger",
			expected: "Un été avec un ******",
			words:    []string{"badger"},
		},
		{
			name:     "Word adjacent to trailing punctuation",
			input:    "I love badger!",
			expected: "I love ******!",
			words:    []string{"badger"},
		},
		{
			name:     "Nothing to censor",
			input:    "Chat-Sync is amazing",
			expected: "Chat-Sync is amazing",
			words:    nil,
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
			words:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, words := mod.inspect(tt.input)
			req.Equal(tt.expected, content, "test=%s,", tt.name)
			req.Equal(tt.words, words, "expected=%s,words=%s", tt.expected, words)
		})
	}
}

func TestModerator_CornerCases(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given real noise and not Leet Speak associated
	dictionary := []string{"...", ",,,", "", "badger"}

	mod, err := NewModerator(dictionary, replacementChar, log)
	req.NoError(err)

	// Then the sentence is censored
	input := "The badger is safe"
	expected := "The ****** is safe"
	content, words := mod.inspect(input)
	req.Equal(expected, content)
	req.Equal([]string{"badger"}, words)

	// Then real noise is uncensored
	input = "Hello ..."
	expected = "Hello ..."
	content, words = mod.inspect(input)
	req.Equal(expected, content)
	req.Nil(words)
}

func TestModerator_Censor_Matches_Contract(t *testing.T) {
	req := require.New(t)
	mod, err := NewModerator([]string{"idiot"}, replacementChar, logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(err)

	req.Equal("you *****", mod.Censor("you idiot"))
	req.Equal("hello", mod.Censor("hello"))
}

func TestNewModerator_Rejects_Empty_Dictionary(t *testing.T) {
	req := require.New(t)

	_, err := NewModerator([]string{"...", ""}, replacementChar, logs.GetLoggerFromLevel(slog.LevelDebug))

	req.ErrorIs(err, errors.ErrEmptyWords)
}

func TestCensoredLoader_LoadAll(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{
		"censored/en.txt":    {Data: []byte("idiot\r\nmoron\n\n  idiot  \n")},
		"censored/fr.txt":    {Data: []byte("abruti\n")},
		"censored/README.md": {Data: []byte("not a dictionary")},
	}

	data, err := NewCensoredLoader(fsys).LoadAll("censored")

	req.NoError(err)
	req.Equal([]string{"abruti", "idiot", "moron"}, data.Words)
	req.Equal([]string{"en", "fr"}, data.Languages)
}

func TestCensoredLoader_Empty_Folder(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{"censored/en.txt": {Data: []byte("\n\n")}}

	_, err := NewCensoredLoader(fsys).LoadAll("censored")

	req.ErrorIs(err, errors.ErrEmptyWords)
}

func TestEmbeddedLoader_Builds_A_Moderator(t *testing.T) {
	req := require.New(t)

	data, err := NewEmbeddedLoader().LoadAll("censored")
	req.NoError(err)
	mod, err := NewModerator(data.Words, replacementChar, logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(err)

	req.Equal("quel ******", mod.Censor("quel abruti"))
}

func BenchmarkModerator_Censor(b *testing.B) {
	data, err := NewEmbeddedLoader().LoadAll("censored")
	if err != nil {
		b.Fatal(err)
	}
	mod, err := NewModerator(data.Words, replacementChar, logs.GetLoggerFromLevel(slog.LevelError))
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mod.Censor("What a 5tup1d m.o.r.o.n, really")
	}
}
