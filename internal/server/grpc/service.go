package grpc

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = common.ServiceName

// VaultKeeperServer is the server-side contract of ServiceName.
type VaultKeeperServer interface {
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteSecondFactor(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LogoutAll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangePassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Recover(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RegenerateRecoveryKey(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetupSecondFactor(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EnableSecondFactor(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DisableSecondFactor(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RegenerateBackupCodes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BackupCodeStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type method func(VaultKeeperServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var methods = map[string]method{
	"Ping":                  VaultKeeperServer.Ping,
	"Register":              VaultKeeperServer.Register,
	"Login":                 VaultKeeperServer.Login,
	"CompleteSecondFactor":  VaultKeeperServer.CompleteSecondFactor,
	"Logout":                VaultKeeperServer.Logout,
	"LogoutAll":             VaultKeeperServer.LogoutAll,
	"ListSessions":          VaultKeeperServer.ListSessions,
	"ChangePassword":        VaultKeeperServer.ChangePassword,
	"Recover":               VaultKeeperServer.Recover,
	"RegenerateRecoveryKey": VaultKeeperServer.RegenerateRecoveryKey,
	"DeleteAccount":         VaultKeeperServer.DeleteAccount,
	"SetupSecondFactor":     VaultKeeperServer.SetupSecondFactor,
	"EnableSecondFactor":    VaultKeeperServer.EnableSecondFactor,
	"DisableSecondFactor":   VaultKeeperServer.DisableSecondFactor,
	"RegenerateBackupCodes": VaultKeeperServer.RegenerateBackupCodes,
	"BackupCodeStatus":      VaultKeeperServer.BackupCodeStatus,
}

// publicMethods run without a session.
var publicMethods = map[string]bool{
	"Ping":                 true,
	"Register":             true,
	"Login":                true,
	"CompleteSecondFactor": true,
	"Recover":              true,
}

// FullMethod returns the gRPC path of name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// Register attaches svc to server under ServiceName.
func Register(server grpc.ServiceRegistrar, svc VaultKeeperServer) {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)

	desc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*VaultKeeperServer)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "vaultkeeper/v1/service.proto",
	}
	for _, name := range names {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: name,
			Handler:    structHandler(name, methods[name]),
		})
	}

	server.RegisterService(desc, svc)
}

func structHandler(name string, call method) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		svc := srv.(VaultKeeperServer)
		if interceptor == nil {
			return call(svc, ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(name),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(svc, ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
