package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/pagination"
)

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests?limit=10&cursor=abc", nil)
	params, err := ParsePagination(req, 25)
	require.NoError(t, err)
	assert.Equal(t, 10, params.Limit)
	assert.Equal(t, "abc", params.Cursor)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil)
	params, err = ParsePagination(req, 0)
	require.NoError(t, err)
	assert.Equal(t, pagination.DefaultLimit, params.Limit)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/requests?limit=500", nil)
	_, err = ParsePagination(req, 25)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryUUIDAndBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?toolId=nope&unreadOnly=maybe", nil)
	_, err := ParseQueryUUID(req, "toolId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseQueryBool(req, "unreadOnly")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	id, err := ParseQueryUUID(req, "toolId")
	require.NoError(t, err)
	assert.Nil(t, id)
}

type decisionBody struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
}

func TestDecodeJSONBodyRejectsUnknownFieldsAndInvalidValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"decision":"approve","extra":1}`))
	var body decisionBody
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &body), pkgerrors.CodeValidation))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"decision":"maybe"}`))
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be one of: approve reject", details["decision"])
}

type batchBody struct {
	Items []struct {
		Quantity int `json:"quantity" validate:"required,min=1"`
	} `json:"items" validate:"required,min=1,dive"`
	Label string `json:"label" validate:"required,notblank"`
}

func TestDecodeJSONBodyReportsNestedFieldsAndBlankStrings(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[{"quantity":1},{"quantity":0}],"label":"   "}`))
	var body batchBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["items[1].quantity"])
	assert.Equal(t, "must not be blank", details["label"])
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"syntax":         `{"decision":`,
		"wrong type":     `{"decision":5}`,
		"trailing data":  `{"decision":"approve"} {"decision":"reject"}`,
		"oversized body": `{"decision":"` + strings.Repeat("a", MaxBodyBytes) + `"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
			var body decisionBody
			assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &body), pkgerrors.CodeValidation))
		})
	}
}

type notesBody struct {
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=10"`
}

func TestDecodeOptionalJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	var empty notesBody
	require.NoError(t, DecodeOptionalJSONBody(req, &empty))
	assert.Nil(t, empty.Notes)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"notes":"dented"}`))
	var filled notesBody
	require.NoError(t, DecodeOptionalJSONBody(req, &filled))
	require.NotNil(t, filled.Notes)
	assert.Equal(t, "dented", *filled.Notes)

	for _, raw := range []string{`{"notes":"far too long for this"}`, `{"extra":1}`, `{"notes":`} {
		req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
		var body notesBody
		assert.True(t, pkgerrors.IsCode(DecodeOptionalJSONBody(req, &body), pkgerrors.CodeValidation), raw)
	}
}
