package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"GreenCorridor/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorBody(t *testing.T, err error) (int, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	Error(c, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestErrorKeepsClientMessages(t *testing.T) {
	code, body := errorBody(t, errors.NotFoundf("alert %d not found", 7))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "alert 7 not found", body["message"])
	assert.Equal(t, false, body["success"])
}

func TestErrorHidesServerFailures(t *testing.T) {
	code, body := errorBody(t, errors.Transient(stderrors.New("dial tcp 10.0.0.5:5432: refused"), "list responders"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal error", body["message"])
}
