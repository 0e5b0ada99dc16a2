package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Inbound
	}{
		{
			name: "structured with files",
			raw:  `{"message":"hi","selectedFiles":["a.txt","b.pdf"]}`,
			want: Inbound{Kind: KindStructured, Message: "hi", SelectedFiles: []string{"a.txt", "b.pdf"}},
		},
		{
			name: "structured without files",
			raw:  `{"message":"hello"}`,
			want: Inbound{Kind: KindStructured, Message: "hello"},
		},
		{
			name: "leading whitespace before object",
			raw:  "  \n{\"message\":\"padded\"}",
			want: Inbound{Kind: KindStructured, Message: "padded"},
		},
		{
			name: "plain text",
			raw:  "hello",
			want: Inbound{Kind: KindText, Message: "hello"},
		},
		{
			name: "broken json keeps payload verbatim",
			raw:  `{"message":"hi"`,
			want: Inbound{Kind: KindText, Message: `{"message":"hi"`},
		},
		{
			name: "json string is not an object",
			raw:  `"quoted"`,
			want: Inbound{Kind: KindText, Message: `"quoted"`},
		},
		{
			name: "json number is not an object",
			raw:  `42`,
			want: Inbound{Kind: KindText, Message: `42`},
		},
		{
			name: "wrong field type falls back to text",
			raw:  `{"message":"hi","selectedFiles":"a.txt"}`,
			want: Inbound{Kind: KindText, Message: `{"message":"hi","selectedFiles":"a.txt"}`},
		},
		{
			name: "unicode text",
			raw:  "héllo 👋",
			want: Inbound{Kind: KindText, Message: "héllo 👋"},
		},
		{
			name: "empty payload",
			raw:  "",
			want: Inbound{Kind: KindText, Message: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse([]byte(tt.raw)))
		})
	}
}

func TestParseTextMatchesStructuredWithoutFiles(t *testing.T) {
	text := Parse([]byte("hello"))
	structured := Parse([]byte(`{"message":"hello"}`))

	assert.Equal(t, text.Message, structured.Message)
	assert.Empty(t, text.SelectedFiles)
	assert.Empty(t, structured.SelectedFiles)
}

func TestEnvelopeEncoding(t *testing.T) {
	data, err := json.Marshal(NewUserEnvelope("hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"sender":"user","text":"hi"}`, string(data))

	data, err = json.Marshal(NewAnswerEnvelope("hi there", true, []string{"doc1"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"sender":"ai","text":"hi there","usedRag":true,"sources":["doc1"]}`, string(data))

	data, err = json.Marshal(NewAnswerEnvelope("🤖 (no response)", false, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"sender":"ai","text":"🤖 (no response)","usedRag":false,"sources":[]}`, string(data))

	data, err = json.Marshal(NewErrorEnvelope())
	require.NoError(t, err)
	assert.JSONEq(t, `{"sender":"ai","text":"⚠️ AI backend error"}`, string(data))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "text", KindText.String())
	assert.Equal(t, "structured", KindStructured.String())
}
