package provenance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/config"
	"github.com/pg-sharding/colexec/pkg/execlog"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/sethvargo/go-retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "colexec.provenance.Validator"

const (
	methodBuildPlan       = "BuildPlan"
	methodBuildExpr       = "BuildExpr"
	methodExecutePrologue = "ExecutePrologue"
	methodExecuteEpilogue = "ExecuteEpilogue"
	methodReifyExpression = "ReifyExpression"
	methodRegisterPolicy  = "RegisterPolicy"
)

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

// GRPCValidator talks to a remote validator. Requests and responses are
// protobuf Structs; payloads travel as base64 text, snappy compressed above
// the configured size.
type GRPCValidator struct {
	conn              grpc.ClientConnInterface
	retries           uint64
	backoff           time.Duration
	timeout           time.Duration
	compressThreshold int
}

var _ Validator = &GRPCValidator{}

func NewGRPCValidator(conn grpc.ClientConnInterface, cfg *config.ValidatorCfg) *GRPCValidator {
	return &GRPCValidator{
		conn:              conn,
		retries:           cfg.Retries,
		backoff:           time.Duration(cfg.BackoffMs) * time.Millisecond,
		timeout:           time.Duration(cfg.TimeoutMs) * time.Millisecond,
		compressThreshold: cfg.CompressThreshold,
	}
}

// DialValidator connects to the validator at cfg.Addr.
func DialValidator(cfg *config.ValidatorCfg) (*GRPCValidator, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return NewGRPCValidator(conn, cfg), conn, nil
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

func (v *GRPCValidator) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	resp := &structpb.Struct{}

	backoff := v.backoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	policy := retry.WithMaxRetries(v.retries, retry.NewExponential(backoff))
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		callCtx := ctx
		if v.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, v.timeout)
			defer cancel()
		}
		if err := v.conn.Invoke(callCtx, fullMethod(method), req, resp); err != nil {
			if retryable(err) {
				execlog.Zero.Debug().Err(err).Str("method", method).Msg("retrying validator call")
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, execerror.Newf(execerror.EXEC_VALIDATOR, "validator call %s failed: %s", method, status.Convert(err).Message())
	}
	return resp, nil
}

func (v *GRPCValidator) invokeID(ctx context.Context, method string, fields map[string]any) (uuid.UUID, error) {
	resp, err := v.invoke(ctx, method, fields)
	if err != nil {
		return uuid.Nil, err
	}
	return responseID(resp)
}

func responseID(resp *structpb.Struct) (uuid.UUID, error) {
	f, ok := resp.GetFields()["id"]
	if !ok {
		return uuid.Nil, execerror.New(execerror.EXEC_VALIDATOR, "validator response carries no id")
	}
	id, err := uuid.Parse(f.GetStringValue())
	if err != nil {
		return uuid.Nil, execerror.Newf(execerror.EXEC_VALIDATOR, "validator returned a malformed id: %s", err)
	}
	return id, nil
}

func (v *GRPCValidator) payloadFields(fields map[string]any, data []byte) map[string]any {
	text, compressed := encodePayload(data, v.compressThreshold)
	fields["payload"] = text
	fields["compressed"] = compressed
	return fields
}

func (v *GRPCValidator) BuildPlan(ctx context.Context, ctxID uuid.UUID, arg PlanArgument) (uuid.UUID, error) {
	data, err := MarshalPlanArgument(arg)
	if err != nil {
		return uuid.Nil, err
	}
	return v.invokeID(ctx, methodBuildPlan, v.payloadFields(map[string]any{"ctx_id": ctxID.String()}, data))
}

func (v *GRPCValidator) BuildExpr(ctx context.Context, ctxID uuid.UUID, arg ExprArgument) (uuid.UUID, error) {
	data, err := MarshalExprArgument(arg)
	if err != nil {
		return uuid.Nil, err
	}
	return v.invokeID(ctx, methodBuildExpr, v.payloadFields(map[string]any{"ctx_id": ctxID.String()}, data))
}

func (v *GRPCValidator) ExecutePrologue(ctx context.Context, ctxID uuid.UUID, planID uuid.UUID, activeDF uuid.UUID) (uuid.UUID, error) {
	return v.invokeID(ctx, methodExecutePrologue, map[string]any{
		"ctx_id":    ctxID.String(),
		"plan_id":   planID.String(),
		"active_df": activeDF.String(),
	})
}

func (v *GRPCValidator) ExecuteEpilogue(ctx context.Context, ctxID uuid.UUID, activeDF uuid.UUID, payload *Epilogue) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, err
	}
	return v.invokeID(ctx, methodExecuteEpilogue, v.payloadFields(map[string]any{
		"ctx_id":    ctxID.String(),
		"active_df": activeDF.String(),
	}, data))
}

func (v *GRPCValidator) ReifyExpression(ctx context.Context, ctxID uuid.UUID, exprID uuid.UUID, data []byte) error {
	_, err := v.invoke(ctx, methodReifyExpression, v.payloadFields(map[string]any{
		"ctx_id":  ctxID.String(),
		"expr_id": exprID.String(),
	}, data))
	return err
}

func (v *GRPCValidator) RegisterPolicy(ctx context.Context, ctxID uuid.UUID, policy []byte) (uuid.UUID, error) {
	return v.invokeID(ctx, methodRegisterPolicy, v.payloadFields(map[string]any{"ctx_id": ctxID.String()}, policy))
}
