package serverutils

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"ai-docquery-be/pkg/agent/agenterr"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responseFor(t *testing.T, err error) (int, string) {
	t.Helper()

	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/boom", func(ctx *fiber.Ctx) error {
		return err
	})

	resp, reqErr := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, reqErr)
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, readErr)

	var parsed Response
	require.NoError(t, json.Unmarshal(body, &parsed))
	return resp.StatusCode, parsed.Message
}

func TestErrorHandlerHidesInternalErrorStrings(t *testing.T) {
	status, message := responseFor(t,
		agenterr.Classification("json unmarshal failed: unexpected token", nil))

	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.NotContains(t, message, "CLASSIFICATION")
	assert.NotContains(t, message, "unmarshal")
	assert.Contains(t, message, "rephrase")
}

func TestErrorHandlerSuggestsNextStepPerKind(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantHint   string
	}{
		{"query generation", agenterr.QueryGeneration("pipeline is not a list", nil), fiber.StatusUnprocessableEntity, "rephrase"},
		{"evidence missing", agenterr.EvidenceMissing("no evidence gathered within 3 steps", nil), fiber.StatusNotFound, "rephrase"},
		{"timeout", agenterr.Timeout("step exceeded 30s", nil), fiber.StatusGatewayTimeout, "try again"},
		{"retrieval", agenterr.Retrieval("index offline", nil), fiber.StatusBadGateway, "try again"},
		{"configuration", agenterr.Configuration("missing api key", nil), fiber.StatusInternalServerError, "try again"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, message := responseFor(t, tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Contains(t, message, tc.wantHint)
		})
	}
}

func TestErrorHandlerKeepsFiberErrorMessages(t *testing.T) {
	status, message := responseFor(t, fiber.NewError(fiber.StatusBadRequest, "invalid session id"))

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid session id", message)
}
