package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	assert.Equal(t, "Basic Protocol Template for Group Ceremony", c.BaselineProtocol)
	assert.Len(t, c.Protocols, 5)
	assert.Len(t, c.Forms, 8)
	assert.Len(t, c.Optional(), 4)

	want := map[string]int{
		"MAAS": 15, "PPS": 9, "SCS": 26, "MEQ-30": 30,
		"PTSD": 5, "Depression": 5, "Social Anxiety": 5, "Generalized Anxiety": 5,
	}
	for key, n := range want {
		f, ok := c.Form(key)
		require.Truef(t, ok, "form %s", key)
		assert.Lenf(t, f.Questions, n, "form %s", key)
		assert.Equal(t, "Likert scale", f.Type)
	}

	assert.Equal(t, []string{"MAAS", "PPS", "SCS", "MEQ-30"}, c.Protocols[0].Forms)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown form": `
baseline_protocol: P
protocols:
  - name: P
    forms: [X]
forms:
  - key: A
    name: Form A
    questions: ["q"]
`,
		"missing baseline": `
baseline_protocol: Nope
protocols:
  - name: P
    forms: [A]
forms:
  - key: A
    name: Form A
    questions: ["q"]
`,
		"form without questions": `
baseline_protocol: P
protocols:
  - name: P
    forms: [A]
forms:
  - key: A
    name: Form A
`,
		"not yaml": "protocols: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestQuestionDescription(t *testing.T) {
	assert.Equal(t, "MEQ-30 Question", QuestionDescription("MEQ-30"))
}
