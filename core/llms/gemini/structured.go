package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-campus/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// GenerateStructured asks Gemini for a JSON response matching the schema
// reflected from out and decodes the reply into it. out must be a pointer.
func (c *Client) GenerateStructured(ctx context.Context, history []llms.Message, systemPrompt string, out any) error {
	ctx, span := tracer.Start(ctx, "generate structured")
	defer span.End()

	outType := reflect.TypeOf(out)
	if outType == nil || outType.Kind() != reflect.Ptr {
		err := fmt.Errorf("structured output must be a pointer, got %T", out)
		span.RecordError(err)
		return err
	}

	reflector := jsonschema.Reflector{DoNotReference: true, Anonymous: true}
	schema := reflector.ReflectFromType(outType.Elem())
	schema.Version = ""
	if schemaString, err := schema.MarshalJSON(); err == nil {
		span.SetAttributes(attribute.String("request.schema", string(schemaString)))
	}

	response, err := c.generateContent(ctx, span, requestBody{
		Contents: toContents(systemPrompt, history),
		GenerationConfig: generationConfig{
			GenerationConfig:   c.generationConfig,
			ResponseMimeType:   "application/json",
			ResponseJSONSchema: schema,
		},
	})
	if err != nil {
		return err
	}

	text, ok := response.text()
	if !ok {
		err := &llms.NetworkError{Provider: providerName, Err: llms.ErrEmptyResponse}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := json.Unmarshal([]byte(text), out); err != nil {
		err = fmt.Errorf("error unmarshalling structured response: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
