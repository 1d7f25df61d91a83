// Package apiv2 carries hand-maintained bindings for the v2 admin
// service of the Dgraph wire protocol (see api_v2.proto): lease
// allocation and namespace administration.
//
// The upstream protos module only ships the core api.Dgraph service, so
// this small surface is kept here. Messages are written in the legacy
// form (field tags plus Reset/String/ProtoMessage) that the stock gRPC
// proto codec accepts via protoadapt; regenerate from api_v2.proto if
// the schema grows beyond what is comfortable to maintain by hand.
package apiv2

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

type AllocateIDsRequest struct {
	HowMany uint64 `protobuf:"varint,1,opt,name=how_many,json=howMany,proto3" json:"how_many,omitempty"`
	// One of "uid", "timestamp", "namespace".
	LeaseKind string `protobuf:"bytes,2,opt,name=lease_kind,json=leaseKind,proto3" json:"lease_kind,omitempty"`
}

func (m *AllocateIDsRequest) Reset()         { *m = AllocateIDsRequest{} }
func (m *AllocateIDsRequest) String() string { return fmt.Sprintf("%+v", *m) }
func (*AllocateIDsRequest) ProtoMessage()    {}

type AllocateIDsResponse struct {
	// Half-open range [start, end).
	Start uint64 `protobuf:"varint,1,opt,name=start,proto3" json:"start,omitempty"`
	End   uint64 `protobuf:"varint,2,opt,name=end,proto3" json:"end,omitempty"`
}

func (m *AllocateIDsResponse) Reset()         { *m = AllocateIDsResponse{} }
func (m *AllocateIDsResponse) String() string { return fmt.Sprintf("%+v", *m) }
func (*AllocateIDsResponse) ProtoMessage()    {}

type CreateNamespaceRequest struct{}

func (m *CreateNamespaceRequest) Reset()         { *m = CreateNamespaceRequest{} }
func (m *CreateNamespaceRequest) String() string { return fmt.Sprintf("%+v", *m) }
func (*CreateNamespaceRequest) ProtoMessage()    {}

type CreateNamespaceResponse struct {
	Namespace uint64 `protobuf:"varint,1,opt,name=namespace,proto3" json:"namespace,omitempty"`
}

func (m *CreateNamespaceResponse) Reset()         { *m = CreateNamespaceResponse{} }
func (m *CreateNamespaceResponse) String() string { return fmt.Sprintf("%+v", *m) }
func (*CreateNamespaceResponse) ProtoMessage()    {}

type DropNamespaceRequest struct {
	Namespace uint64 `protobuf:"varint,1,opt,name=namespace,proto3" json:"namespace,omitempty"`
}

func (m *DropNamespaceRequest) Reset()         { *m = DropNamespaceRequest{} }
func (m *DropNamespaceRequest) String() string { return fmt.Sprintf("%+v", *m) }
func (*DropNamespaceRequest) ProtoMessage()    {}

type DropNamespaceResponse struct{}

func (m *DropNamespaceResponse) Reset()         { *m = DropNamespaceResponse{} }
func (m *DropNamespaceResponse) String() string { return fmt.Sprintf("%+v", *m) }
func (*DropNamespaceResponse) ProtoMessage()    {}

type ListNamespacesRequest struct{}

func (m *ListNamespacesRequest) Reset()         { *m = ListNamespacesRequest{} }
func (m *ListNamespacesRequest) String() string { return fmt.Sprintf("%+v", *m) }
func (*ListNamespacesRequest) ProtoMessage()    {}

type ListNamespacesResponse struct {
	Namespaces []uint64 `protobuf:"varint,1,rep,packed,name=namespaces,proto3" json:"namespaces,omitempty"`
}

func (m *ListNamespacesResponse) Reset()         { *m = ListNamespacesResponse{} }
func (m *ListNamespacesResponse) String() string { return fmt.Sprintf("%+v", *m) }
func (*ListNamespacesResponse) ProtoMessage()    {}

// DgraphClient is the client API for the api.v2.Dgraph admin service.
type DgraphClient interface {
	AllocateIDs(ctx context.Context, in *AllocateIDsRequest, opts ...grpc.CallOption) (*AllocateIDsResponse, error)
	CreateNamespace(ctx context.Context, in *CreateNamespaceRequest, opts ...grpc.CallOption) (*CreateNamespaceResponse, error)
	DropNamespace(ctx context.Context, in *DropNamespaceRequest, opts ...grpc.CallOption) (*DropNamespaceResponse, error)
	ListNamespaces(ctx context.Context, in *ListNamespacesRequest, opts ...grpc.CallOption) (*ListNamespacesResponse, error)
}

type dgraphClient struct {
	cc grpc.ClientConnInterface
}

func NewDgraphClient(cc grpc.ClientConnInterface) DgraphClient {
	return &dgraphClient{cc}
}

func (c *dgraphClient) AllocateIDs(ctx context.Context, in *AllocateIDsRequest, opts ...grpc.CallOption) (*AllocateIDsResponse, error) {
	out := new(AllocateIDsResponse)
	if err := c.cc.Invoke(ctx, "/api.v2.Dgraph/AllocateIDs", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dgraphClient) CreateNamespace(ctx context.Context, in *CreateNamespaceRequest, opts ...grpc.CallOption) (*CreateNamespaceResponse, error) {
	out := new(CreateNamespaceResponse)
	if err := c.cc.Invoke(ctx, "/api.v2.Dgraph/CreateNamespace", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dgraphClient) DropNamespace(ctx context.Context, in *DropNamespaceRequest, opts ...grpc.CallOption) (*DropNamespaceResponse, error) {
	out := new(DropNamespaceResponse)
	if err := c.cc.Invoke(ctx, "/api.v2.Dgraph/DropNamespace", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dgraphClient) ListNamespaces(ctx context.Context, in *ListNamespacesRequest, opts ...grpc.CallOption) (*ListNamespacesResponse, error) {
	out := new(ListNamespacesResponse)
	if err := c.cc.Invoke(ctx, "/api.v2.Dgraph/ListNamespaces", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
