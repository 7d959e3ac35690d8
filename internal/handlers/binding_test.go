package handlers

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type samplePayload struct {
	ProcessType string `json:"process_type" binding:"required"`
	Progress    int    `json:"progress"`
}

func TestBindNestedOrFlat(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		key         string
		body        string
		expected    samplePayload
		expectError bool
	}{
		{
			name:     "Nested Structure",
			key:      "batch",
			body:     `{"batch": {"process_type": "scouring", "progress": 30}}`,
			expected: samplePayload{ProcessType: "scouring", Progress: 30},
		},
		{
			name:     "Flat Structure",
			key:      "batch",
			body:     `{"process_type": "desizing", "progress": 25}`,
			expected: samplePayload{ProcessType: "desizing", Progress: 25},
		},
		{
			name:     "Missing Key Falls Back To Flat",
			key:      "batch",
			body:     `{"other": "value", "process_type": "singeing", "progress": 40}`,
			expected: samplePayload{ProcessType: "singeing", Progress: 40},
		},
		{
			name:        "Wrong Type",
			key:         "batch",
			body:        `{"process_type": "scouring", "progress": "half"}`,
			expectError: true,
		},
		{
			name:        "Nested Key Present but Invalid Type",
			key:         "batch",
			body:        `{"batch": "some string"}`,
			expectError: true,
		},
		{
			name:        "Binding Rules Still Apply",
			key:         "batch",
			body:        `{"batch": {"progress": 10}}`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("POST", "/", bytes.NewBufferString(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var result samplePayload
			err := BindNestedOrFlat(c, tt.key, &result)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestBindingErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"progress": 10}`))

	var result samplePayload
	fields := bindingErrors(BindNestedOrFlat(c, "batch", &result))
	assert.Equal(t, map[string]string{"process_type": "is required"}, fields)

	c.Request = httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"process_type": "x", "progress": "half"}`))
	fields = bindingErrors(BindNestedOrFlat(c, "batch", &result))
	assert.Equal(t, "must be of type int", fields["progress"])

	c.Request = httptest.NewRequest("POST", "/", bytes.NewBufferString(`{not json`))
	fields = bindingErrors(BindNestedOrFlat(c, "batch", &result))
	assert.Equal(t, "is not valid JSON", fields["body"])
}
