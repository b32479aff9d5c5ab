package handler

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/core/service"
)

const storefrontServiceName = "storefront.v1.Storefront"

type CatalogRequest struct{}

type CatalogResponse struct {
	Products []ProductResponse `json:"products"`
}

type CreateCheckoutSessionRequest struct {
	IdempotencyKey string            `json:"idempotency_key"`
	LineItems      []LineItemRequest `json:"lineItems"`
}

// StorefrontServer is the gRPC surface of the storefront.
type StorefrontServer interface {
	GetCatalog(context.Context, *CatalogRequest) (*CatalogResponse, error)
	ValidateCart(context.Context, *CartRequest) (*ValidateCartResponse, error)
	CreateCheckoutSession(context.Context, *CreateCheckoutSessionRequest) (*CheckoutSessionResponse, error)
}

type GRPCHandler struct {
	catalog   *service.CatalogService
	validator *service.CartValidator
	checkout  *service.CheckoutService
	logger    log.FieldLogger
}

var _ StorefrontServer = (*GRPCHandler)(nil)

func NewGRPCHandler(catalog *service.CatalogService, validator *service.CartValidator, checkout *service.CheckoutService, logger log.FieldLogger) *GRPCHandler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &GRPCHandler{catalog: catalog, validator: validator, checkout: checkout, logger: logger}
}

// NewGRPCServer returns a traced gRPC server with the storefront service
// registered.
func NewGRPCServer(h StorefrontServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	srv := grpc.NewServer(opts...)
	RegisterStorefrontServer(srv, h)
	return srv
}

// RegisterStorefrontServer registers srv on s. The server must use JSONCodec.
func RegisterStorefrontServer(s grpc.ServiceRegistrar, srv StorefrontServer) {
	s.RegisterService(&storefrontServiceDesc, srv)
}

func (h *GRPCHandler) GetCatalog(ctx context.Context, _ *CatalogRequest) (*CatalogResponse, error) {
	products, err := h.catalog.GetCatalog(ctx)
	if err != nil {
		return nil, h.statusError(err)
	}
	return &CatalogResponse{Products: toProductResponses(products)}, nil
}

func (h *GRPCHandler) ValidateCart(ctx context.Context, req *CartRequest) (*ValidateCartResponse, error) {
	validated, err := h.validator.Validate(ctx, toCartLines(req.LineItems))
	if err != nil {
		return nil, h.statusError(err)
	}
	return &ValidateCartResponse{LineItems: toValidatedResponses(validated)}, nil
}

func (h *GRPCHandler) CreateCheckoutSession(ctx context.Context, req *CreateCheckoutSessionRequest) (*CheckoutSessionResponse, error) {
	key := req.IdempotencyKey
	if key == "" {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get("idempotency-key"); len(values) > 0 {
				key = values[0]
			}
		}
	}

	session, err := h.checkout.CreateSession(ctx, key, toCartLines(req.LineItems))
	if err != nil {
		return nil, h.statusError(err)
	}
	return &CheckoutSessionResponse{ClientSecret: session.ClientSecret}, nil
}

func (h *GRPCHandler) statusError(err error) error {
	code := grpcCode(err)
	if code == codes.Internal || code == codes.Unavailable {
		h.logger.WithError(err).Error("grpc request failed")
	}
	return status.Error(code, service.PublicMessage(err))
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, service.ErrInvalidCartInput):
		return codes.InvalidArgument
	case errors.Is(err, service.ErrInsufficientStock), errors.Is(err, service.ErrProductUnavailable):
		return codes.FailedPrecondition
	case errors.Is(err, service.ErrCheckoutInProgress):
		return codes.Aborted
	case errors.Is(err, service.ErrIdempotencyKeyReused):
		return codes.FailedPrecondition
	case errors.Is(err, service.ErrRemoteLookupFailed), errors.Is(err, service.ErrCatalogUnavailable):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

var storefrontServiceDesc = grpc.ServiceDesc{
	ServiceName: storefrontServiceName,
	HandlerType: (*StorefrontServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCatalog", Handler: getCatalogHandler},
		{MethodName: "ValidateCart", Handler: validateCartHandler},
		{MethodName: "CreateCheckoutSession", Handler: createCheckoutSessionHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/storefront.json",
}

func getCatalogHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CatalogRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorefrontServer).GetCatalog(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + storefrontServiceName + "/GetCatalog"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StorefrontServer).GetCatalog(ctx, req.(*CatalogRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func validateCartHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CartRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorefrontServer).ValidateCart(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + storefrontServiceName + "/ValidateCart"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StorefrontServer).ValidateCart(ctx, req.(*CartRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func createCheckoutSessionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateCheckoutSessionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorefrontServer).CreateCheckoutSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + storefrontServiceName + "/CreateCheckoutSession"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StorefrontServer).CreateCheckoutSession(ctx, req.(*CreateCheckoutSessionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// StorefrontClient calls the storefront gRPC service.
type StorefrontClient struct {
	cc grpc.ClientConnInterface
}

func NewStorefrontClient(cc grpc.ClientConnInterface) *StorefrontClient {
	return &StorefrontClient{cc: cc}
}

func (c *StorefrontClient) GetCatalog(ctx context.Context, in *CatalogRequest, opts ...grpc.CallOption) (*CatalogResponse, error) {
	out := new(CatalogResponse)
	if err := c.cc.Invoke(ctx, "/"+storefrontServiceName+"/GetCatalog", in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StorefrontClient) ValidateCart(ctx context.Context, in *CartRequest, opts ...grpc.CallOption) (*ValidateCartResponse, error) {
	out := new(ValidateCartResponse)
	if err := c.cc.Invoke(ctx, "/"+storefrontServiceName+"/ValidateCart", in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StorefrontClient) CreateCheckoutSession(ctx context.Context, in *CreateCheckoutSessionRequest, opts ...grpc.CallOption) (*CheckoutSessionResponse, error) {
	out := new(CheckoutSessionResponse)
	if err := c.cc.Invoke(ctx, "/"+storefrontServiceName+"/CreateCheckoutSession", in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withJSON(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
}
