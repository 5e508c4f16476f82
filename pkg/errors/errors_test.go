package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		code     string
		sentinel error
		contains string
	}{
		{
			name:     "unknown prefix",
			err:      UnknownPrefix("foaf", "foaf:name"),
			code:     CodeUnknownPrefix,
			sentinel: ErrUnknownPrefix,
			contains: `prefix "foaf"`,
		},
		{
			name:     "template mismatch",
			err:      TemplateMismatch("ex:{a}/{b}", "b", 1, 2),
			code:     CodeTemplateSubstitutionMismatch,
			sentinel: ErrTemplateSubstitutionMismatch,
			contains: "has 1 values, expected 2",
		},
		{
			name:     "serialization failure",
			err:      SerializationFailure("out/g_0_1.ttl", fmt.Errorf("disk full")),
			code:     CodeSerializationFailure,
			sentinel: ErrSerializationFailure,
			contains: "disk full",
		},
		{
			name:     "unsupported format",
			err:      UnsupportedFormat("rdfa"),
			code:     CodeUnsupportedFormat,
			sentinel: ErrUnsupportedFormat,
			contains: `"rdfa"`,
		},
		{
			name:     "invalid descriptor",
			err:      InvalidDescriptor("entity Person has no uri_template"),
			code:     CodeInvalidDescriptor,
			sentinel: ErrInvalidDescriptor,
			contains: "no uri_template",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			assert.Contains(t, tt.err.Error(), tt.contains)
			assert.Contains(t, tt.err.Error(), "["+tt.code+"]")
		})
	}
}

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("record 3: %w", TemplateMismatch("t", "v", 0, 1))

	assert.True(t, IsTemplateMismatch(wrapped))
	assert.False(t, IsUnknownPrefix(wrapped))
	assert.True(t, IsUnknownPrefix(UnknownPrefix("ex", "ex:1")))
	assert.True(t, IsSerializationFailure(SerializationFailure("s", errors.New("boom"))))
	assert.True(t, IsUnsupportedFormat(UnsupportedFormat("x")))
}

func TestErrorWithoutCause(t *testing.T) {
	err := NewError("CODE", "message", nil)
	assert.Equal(t, "[CODE] message", err.Error())
	assert.Nil(t, err.Unwrap())
}
