package provenance

import (
	"encoding/base64"
	"encoding/json"

	"github.com/golang/snappy"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

type envelope struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

func marshalKind(kind string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: kind, Body: body})
}

func MarshalPlanArgument(arg PlanArgument) ([]byte, error) {
	return marshalKind(arg.Kind(), arg)
}

func UnmarshalPlanArgument(data []byte) (PlanArgument, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	var arg PlanArgument
	switch env.Kind {
	case KindSelect:
		arg = &SelectArg{}
	case KindProjection:
		arg = &ProjectionArg{}
	case KindAggregate:
		arg = &AggregateArg{}
	case KindTransform:
		arg = &TransformArg{}
	case KindHstack:
		arg = &HstackArg{}
	case KindGetData:
		arg = &GetDataArg{}
	default:
		return nil, execerror.Newf(execerror.EXEC_VALIDATOR, "unknown plan argument kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Body, arg); err != nil {
		return nil, err
	}
	return arg, nil
}

func MarshalExprArgument(arg ExprArgument) ([]byte, error) {
	return marshalKind(arg.Kind(), arg)
}

func UnmarshalExprArgument(data []byte) (ExprArgument, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	var arg ExprArgument
	switch env.Kind {
	case KindColumnExpr:
		arg = &ColumnExpr{}
	case KindCountExpr:
		arg = &CountExpr{}
	case KindAggExpr:
		arg = &AggExpr{}
	default:
		return nil, execerror.Newf(execerror.EXEC_VALIDATOR, "unknown expression kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Body, arg); err != nil {
		return nil, err
	}
	return arg, nil
}

type wireEpilogue struct {
	Arg       json.RawMessage `json:"arg,omitempty"`
	Transform *TransformInfo  `json:"transform,omitempty"`
}

func (e Epilogue) MarshalJSON() ([]byte, error) {
	w := wireEpilogue{Transform: e.Transform}
	if e.Arg != nil {
		arg, err := MarshalPlanArgument(e.Arg)
		if err != nil {
			return nil, err
		}
		w.Arg = arg
	}
	return json.Marshal(w)
}

func (e *Epilogue) UnmarshalJSON(data []byte) error {
	var w wireEpilogue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Transform = w.Transform
	e.Arg = nil
	if len(w.Arg) > 0 {
		arg, err := UnmarshalPlanArgument(w.Arg)
		if err != nil {
			return err
		}
		e.Arg = arg
	}
	return nil
}

// encodePayload renders data as text, snappy compressing it when it is at
// least threshold bytes long. A zero threshold disables compression.
func encodePayload(data []byte, threshold int) (string, bool) {
	if threshold > 0 && len(data) >= threshold {
		return base64.StdEncoding.EncodeToString(snappy.Encode(nil, data)), true
	}
	return base64.StdEncoding.EncodeToString(data), false
}

func decodePayload(text string, compressed bool) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, err
	}
	if !compressed {
		return raw, nil
	}
	return snappy.Decode(nil, raw)
}
