package job

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTaskList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Row
	}{
		{
			name:  "two rows",
			input: "label,content\ngreeting,Hello\nfarewell,Goodbye\n",
			expected: []Row{
				{Label: "greeting", Content: "Hello"},
				{Label: "farewell", Content: "Goodbye"},
			},
		},
		{
			name:  "crlf and blank lines",
			input: "label,content\r\n\r\na,one\r\n   \r\nb,two\r\n",
			expected: []Row{
				{Label: "a", Content: "one"},
				{Label: "b", Content: "two"},
			},
		},
		{
			name:  "quoted fields",
			input: "label,content\n\"intro, part 1\",\"Hello, world\"\n",
			expected: []Row{
				{Label: "intro, part 1", Content: "Hello, world"},
			},
		},
		{
			name:  "escaped quotes",
			input: "label,content\nq,\"She said \"\"hi\"\"\"\n",
			expected: []Row{
				{Label: "q", Content: `She said "hi"`},
			},
		},
		{
			name:  "unquoted content keeps commas",
			input: "label,content\nlist,apples, pears, plums\n",
			expected: []Row{
				{Label: "list", Content: "apples, pears, plums"},
			},
		},
		{
			name:  "markup content",
			input: "label,content\nssml,<speak>Hi <break time=\"1s\"/> there</speak>\n",
			expected: []Row{
				{Label: "ssml", Content: `<speak>Hi <break time="1s"/> there</speak>`},
			},
		},
		{
			name:  "malformed lines skipped",
			input: "label,content\nno comma here\nok,fine\nbad,\"unterminated\nempty,\n",
			expected: []Row{
				{Label: "ok", Content: "fine"},
			},
		},
		{
			name:     "header only",
			input:    "label,content\n",
			expected: nil,
		},
		{
			name:     "empty input",
			input:    "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ParseTaskList(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, rows)
		})
	}
}
