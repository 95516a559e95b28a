package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/formpoll/internal/model"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   model.Answers
		wantOK bool
	}{
		{
			name:   "json object",
			body:   `{"role":"Engineer","years":5}`,
			want:   model.Answers{"role": "Engineer", "years": "5"},
			wantOK: true,
		},
		{
			name:   "json wins over later key value line",
			body:   "Here you go:\n{\"role\":\"Engineer\",\"years\":5}\nfoo: bar",
			want:   model.Answers{"role": "Engineer", "years": "5"},
			wantOK: true,
		},
		{
			name:   "key value fallback",
			body:   "Role: Backend Engineer\nYears: 5",
			want:   model.Answers{"Role": "Backend Engineer", "Years": "5"},
			wantOK: true,
		},
		{
			name:   "two separate objects are not one mapping",
			body:   "{\"a\":1} and {\"b\":2}\nRole: QA",
			want:   model.Answers{"Role": "QA"},
			wantOK: true,
		},
		{
			name:   "no structured data",
			body:   "Thanks for reaching out, talk soon.",
			wantOK: false,
		},
		{
			name:   "empty body",
			body:   "",
			wantOK: false,
		},
		{
			name:   "malformed json falls through to lines",
			body:   "Location: Remote\n-- \nsig: func main() { fmt.Println(\"hi\") }",
			want:   model.Answers{"Location": "Remote", "sig": "func main() { fmt.Println(\"hi\") }"},
			wantOK: true,
		},
		{
			name:   "empty json object falls through",
			body:   "{}\nRole: DevOps",
			want:   model.Answers{"Role": "DevOps"},
			wantOK: true,
		},
		{
			name:   "outermost braces inside an array",
			body:   `answers: [{"a":1}]`,
			want:   model.Answers{"a": "1"},
			wantOK: true,
		},
		{
			name:   "json value kinds",
			body:   `{"remote":true,"notes":null,"skills":["go", "sql"],"salary":1.5e5}`,
			want:   model.Answers{"remote": "true", "notes": "", "skills": `["go","sql"]`, "salary": "1.5e5"},
			wantOK: true,
		},
		{
			name:   "crlf lines and surrounding whitespace",
			body:   "  Role :   DevOps  \r\nLocation:\tRemote\r\n",
			want:   model.Answers{"Role": "DevOps", "Location": "Remote"},
			wantOK: true,
		},
		{
			name:   "colon without whitespace is not a pair",
			body:   "see https://example.com/jobs\ntime 10:30",
			wantOK: false,
		},
		{
			name:   "quoted request lines ignored",
			body:   "Role: SRE\n\nOn Monday someone wrote:\n> Role: <your role>\n> Location: <city>",
			want:   model.Answers{"Role": "SRE"},
			wantOK: true,
		},
		{
			name:   "later duplicate key wins",
			body:   "Role: Intern\nRole: Staff",
			want:   model.Answers{"Role": "Staff"},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.body)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestExtract_Deterministic(t *testing.T) {
	body := "{\"a\":\"1\",\"b\":2}\nRole: x"
	first, _ := Extract(body)
	for range 20 {
		again, _ := Extract(body)
		assert.Equal(t, first, again)
	}
}
