package driver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamorph-io/forcetap/types"
)

func TestParseAPIError(t *testing.T) {
	t.Run("object body", func(t *testing.T) {
		err := parseAPIError(401, []byte(`{"errorCode":"INVALID_SESSION_ID","message":"Session expired or invalid"}`))
		classified := &types.ClassifiedError{}
		require.ErrorAs(t, err, &classified)
		assert.Equal(t, ErrCodeAPIError, classified.Code)
		assert.Contains(t, classified.Message, "(error code: INVALID_SESSION_ID) Session expired or invalid")
	})

	t.Run("array body", func(t *testing.T) {
		err := parseAPIError(400, []byte(`[{"errorCode":"MALFORMED_QUERY","message":"unexpected token"}]`))
		classified := &types.ClassifiedError{}
		require.ErrorAs(t, err, &classified)
		assert.Contains(t, classified.Message, "(error code: MALFORMED_QUERY) unexpected token")
	})

	t.Run("exception pair preferred", func(t *testing.T) {
		err := parseAPIError(400, []byte(`{"errorCode":"Unknown","message":"unknown","exceptionCode":"InvalidBatch","exceptionMessage":"Records not processed"}`))
		classified := &types.ClassifiedError{}
		require.ErrorAs(t, err, &classified)
		assert.Contains(t, classified.Message, "(error code: InvalidBatch) Records not processed")
	})

	t.Run("unstructured body", func(t *testing.T) {
		err := parseAPIError(502, []byte("Bad Gateway"))
		classified := &types.ClassifiedError{}
		assert.False(t, errors.As(err, &classified))
		assert.EqualError(t, err, "request failed with status 502: Bad Gateway")
	})
}

func TestClassifyQueryError(t *testing.T) {
	s := &Salesforce{config: &Config{SourceType: SourceTypeObject}}

	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, s.classifyQueryError(nil))
	})

	t.Run("unrecognized error unchanged", func(t *testing.T) {
		err := fmt.Errorf("connection reset")
		assert.Equal(t, err, s.classifyQueryError(err))
	})

	t.Run("operation too large", func(t *testing.T) {
		err := s.classifyQueryError(fmt.Errorf("OPERATION_TOO_LARGE: exceeded 100000 distinct who/what's"))
		classified := &types.ClassifiedError{}
		require.ErrorAs(t, err, &classified)
		assert.Equal(t, ErrCodeAPIError, classified.Code)
		assert.Contains(t, classified.Message, "View All Data")
	})

	t.Run("invalid field", func(t *testing.T) {
		err := s.classifyQueryError(fmt.Errorf("INVALID_FIELD: No such column 'Fax' on entity 'Lead'."))
		classified := &types.ClassifiedError{}
		require.ErrorAs(t, err, &classified)
		assert.Equal(t, ErrCodeInvalidField, classified.Code)
		assert.Contains(t, classified.Message, `"Fax"`)
		assert.Contains(t, classified.Message, `"Lead"`)
		assert.Contains(t, classified.Message, SourceTypeObject)
	})

	t.Run("filter value type mismatch", func(t *testing.T) {
		message := "MALFORMED_QUERY: (Amount > 'abc') value of filter criterion for field 'Amount' must be of type decimal"
		err := s.classifyQueryError(fmt.Errorf("%s", message))
		classified := &types.ClassifiedError{}
		require.ErrorAs(t, err, &classified)
		assert.Equal(t, ErrCodeInvalidFilter, classified.Code)
		assert.Contains(t, classified.Message, "Field Amount filter value of 'abc' does not match field type of decimal")
	})

	t.Run("filter type mismatch without operand context", func(t *testing.T) {
		err := s.classifyQueryError(fmt.Errorf("value of filter criterion for field 'CloseDate' must be of type date"))
		classified := &types.ClassifiedError{}
		require.ErrorAs(t, err, &classified)
		assert.Equal(t, ErrCodeInvalidFilter, classified.Code)
		assert.Contains(t, classified.Message, "'CloseDate' is of invalid type")
	})
}
