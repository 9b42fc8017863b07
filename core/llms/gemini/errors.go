package gemini

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/koscakluka/ema-campus/core/llms"
)

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func parseError(resp *http.Response) *llms.NetworkError {
	networkErr := &llms.NetworkError{
		Provider:   providerName,
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		networkErr.Err = err
		return networkErr
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Message == "" {
		networkErr.Message = string(body)
		return networkErr
	}

	networkErr.Message = envelope.Error.Message
	if envelope.Error.Status != "" {
		networkErr.Status = envelope.Error.Status
	}
	return networkErr
}
