package provenance

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type request struct {
	fields map[string]*structpb.Value
}

func (r request) str(key string) string {
	return r.fields[key].GetStringValue()
}

func (r request) id(key string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.str(key))
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "field %s: %s", key, err)
	}
	return id, nil
}

func (r request) payload() ([]byte, error) {
	data, err := decodePayload(r.str("payload"), r.fields["compressed"].GetBoolValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "payload: %s", err)
	}
	return data, nil
}

func idResponse(id uuid.UUID, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	return structpb.NewStruct(map[string]any{"id": id.String()})
}

type validatorHandler func(ctx context.Context, v Validator, r request, ctxID uuid.UUID) (*structpb.Struct, error)

func handle(name string, fn validatorHandler) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := &structpb.Struct{}
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req any) (any, error) {
				r := request{fields: req.(*structpb.Struct).GetFields()}
				ctxID, err := r.id("ctx_id")
				if err != nil {
					return nil, err
				}
				return fn(ctx, srv.(Validator), r, ctxID)
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, call)
		},
	}
}

var validatorServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Validator)(nil),
	Methods: []grpc.MethodDesc{
		handle(methodBuildPlan, func(ctx context.Context, v Validator, r request, ctxID uuid.UUID) (*structpb.Struct, error) {
			data, err := r.payload()
			if err != nil {
				return nil, err
			}
			arg, err := UnmarshalPlanArgument(data)
			if err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			return idResponse(v.BuildPlan(ctx, ctxID, arg))
		}),
		handle(methodBuildExpr, func(ctx context.Context, v Validator, r request, ctxID uuid.UUID) (*structpb.Struct, error) {
			data, err := r.payload()
			if err != nil {
				return nil, err
			}
			arg, err := UnmarshalExprArgument(data)
			if err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			return idResponse(v.BuildExpr(ctx, ctxID, arg))
		}),
		handle(methodExecutePrologue, func(ctx context.Context, v Validator, r request, ctxID uuid.UUID) (*structpb.Struct, error) {
			planID, err := r.id("plan_id")
			if err != nil {
				return nil, err
			}
			activeDF, err := r.id("active_df")
			if err != nil {
				return nil, err
			}
			return idResponse(v.ExecutePrologue(ctx, ctxID, planID, activeDF))
		}),
		handle(methodExecuteEpilogue, func(ctx context.Context, v Validator, r request, ctxID uuid.UUID) (*structpb.Struct, error) {
			activeDF, err := r.id("active_df")
			if err != nil {
				return nil, err
			}
			data, err := r.payload()
			if err != nil {
				return nil, err
			}
			payload := &Epilogue{}
			if err := json.Unmarshal(data, payload); err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			return idResponse(v.ExecuteEpilogue(ctx, ctxID, activeDF, payload))
		}),
		handle(methodReifyExpression, func(ctx context.Context, v Validator, r request, ctxID uuid.UUID) (*structpb.Struct, error) {
			exprID, err := r.id("expr_id")
			if err != nil {
				return nil, err
			}
			data, err := r.payload()
			if err != nil {
				return nil, err
			}
			if err := v.ReifyExpression(ctx, ctxID, exprID, data); err != nil {
				return nil, status.Error(codes.FailedPrecondition, err.Error())
			}
			return &structpb.Struct{}, nil
		}),
		handle(methodRegisterPolicy, func(ctx context.Context, v Validator, r request, ctxID uuid.UUID) (*structpb.Struct, error) {
			data, err := r.payload()
			if err != nil {
				return nil, err
			}
			return idResponse(v.RegisterPolicy(ctx, ctxID, data))
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "provenance/validator",
}

// RegisterValidatorServer exposes v over grpc.
func RegisterValidatorServer(s grpc.ServiceRegistrar, v Validator) {
	s.RegisterService(&validatorServiceDesc, v)
}
