// Package handler serves the storefront and admin HTTP API.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/xenking/loja-api/internal/domain/auth"
	"github.com/xenking/loja-api/internal/domain/cart"
	"github.com/xenking/loja-api/internal/domain/coupon"
	"github.com/xenking/loja-api/internal/domain/notification"
	"github.com/xenking/loja-api/internal/domain/order"
	"github.com/xenking/loja-api/internal/domain/product"
	"github.com/xenking/loja-api/internal/domain/review"
)

// CartService manages the cart of the authenticated user.
type CartService interface {
	View(ctx context.Context, userID int64) (cart.Totals, error)
	AddLine(ctx context.Context, userID, productID int64, qty int) (cart.Totals, error)
	SetQuantity(ctx context.Context, userID, productID int64, qty int) (cart.Totals, error)
	RemoveLine(ctx context.Context, userID, productID int64) (cart.Totals, error)
	ApplyCoupon(ctx context.Context, userID int64, code string) (cart.Totals, error)
	RemoveCoupon(ctx context.Context, userID int64) (cart.Totals, error)
	Clear(ctx context.Context, userID int64) error
}

// OrderService places and queries orders.
type OrderService interface {
	Checkout(ctx context.Context, userID int64, data order.CheckoutData) (*order.Result, error)
	Get(ctx context.Context, userID int64, id uuid.UUID) (*order.Order, error)
	ListForUser(ctx context.Context, userID int64, f order.Filter) ([]order.Order, error)
	GetAny(ctx context.Context, id uuid.UUID) (*order.Order, error)
	ListAll(ctx context.Context, f order.Filter) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to order.Status, adminNotes *string) (*order.Order, error)
}

// CouponLedger answers coupon questions from buyers.
type CouponLedger interface {
	Validate(ctx context.Context, code string, userID int64) (coupon.Validation, error)
	ListActive(ctx context.Context) ([]coupon.Coupon, error)
}

// CouponAdmin manages coupon definitions.
type CouponAdmin interface {
	Create(ctx context.Context, d coupon.Definition) (*coupon.Coupon, error)
	Update(ctx context.Context, id int64, d coupon.Definition) (*coupon.Coupon, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*coupon.Coupon, error)
	List(ctx context.Context, active *bool) ([]coupon.Coupon, error)
}

// ReviewService manages product reviews.
type ReviewService interface {
	Create(ctx context.Context, userID, productID int64, rating int, comment string) (*review.Review, error)
	ListByProduct(ctx context.Context, productID int64) ([]review.Review, error)
	ListByUser(ctx context.Context, userID int64) ([]review.Review, error)
	Stats(ctx context.Context, productID int64) (review.Stats, error)
	Get(ctx context.Context, id int64) (*review.Review, error)
	Update(ctx context.Context, userID, id int64, rating *int, comment *string) (*review.Review, error)
	Delete(ctx context.Context, userID, id int64, admin bool) error
}

// NotificationService reads and updates the notifications of a user.
type NotificationService interface {
	List(ctx context.Context, userID int64, unreadOnly bool) ([]notification.Notification, error)
	Stats(ctx context.Context, userID int64) (notification.Stats, error)
	Get(ctx context.Context, userID, id int64) (*notification.Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	Delete(ctx context.Context, userID, id int64) error
}

// NotificationAdmin manages notifications of every user.
type NotificationAdmin interface {
	Notify(ctx context.Context, n *notification.Notification) error
	ListAll(ctx context.Context, f notification.Filter) ([]notification.Notification, error)
	Update(ctx context.Context, id int64, p notification.Patch) (*notification.Notification, error)
	Remove(ctx context.Context, id int64) error
}

// StockSetter overwrites product stock.
type StockSetter interface {
	SetStock(ctx context.Context, id int64, stock int) (*product.Product, error)
}

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(raw string) (auth.Principal, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Deps are the services the Handler delegates to.
type Deps struct {
	Carts         CartService
	Orders        OrderService
	Coupons       CouponLedger
	CouponAdmin   CouponAdmin
	Reviews       ReviewService
	Notifications NotificationService
	NotifyAdmin   NotificationAdmin
	Stock         StockSetter
	Tokens        TokenVerifier
}

// Handler decodes requests, calls the domain and encodes responses.
type Handler struct {
	deps         Deps
	validate     *validator.Validate
	imageBaseURL string
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config, deps Deps) *Handler {
	return &Handler{
		deps:         deps,
		validate:     newValidator(),
		imageBaseURL: strings.TrimSuffix(cfg.ImageBaseURL, "/"),
	}
}

// Routes returns the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errNoRoute)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errNoMethod)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products/{id}/reviews", h.ListProductReviews)
		r.Get("/products/{id}/reviews/stats", h.ProductReviewStats)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(h.deps.Tokens))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.ViewCart)
				r.Post("/", h.AddToCart)
				r.Delete("/", h.ClearCart)
				r.Post("/apply-coupon", h.ApplyCoupon)
				r.Delete("/remove-coupon", h.RemoveCoupon)
				r.Post("/checkout", h.Checkout)
				r.Patch("/{productID}", h.SetCartQuantity)
				r.Delete("/{productID}", h.RemoveFromCart)
			})

			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)

			r.Get("/coupons", h.ListActiveCoupons)
			r.Post("/coupons/verify", h.VerifyCoupon)

			r.Post("/products/{id}/reviews", h.CreateReview)
			r.Get("/reviews", h.ListMyReviews)
			r.Get("/reviews/{id}", h.GetReview)
			r.Put("/reviews/{id}", h.UpdateReview)
			r.Delete("/reviews/{id}", h.DeleteReview)

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.ListNotifications)
				r.Get("/stats", h.NotificationStats)
				r.Patch("/read-all", h.MarkAllNotificationsRead)
				r.Get("/{id}", h.GetNotification)
				r.Patch("/{id}/read", h.MarkNotificationRead)
				r.Delete("/{id}", h.DeleteNotification)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(auth.RoleAdmin))

				r.Get("/orders", h.AdminListOrders)
				r.Get("/orders/{id}", h.AdminGetOrder)
				r.Patch("/orders/{id}/status", h.UpdateOrderStatus)

				r.Get("/coupons", h.AdminListCoupons)
				r.Post("/coupons", h.AdminCreateCoupon)
				r.Get("/coupons/{id}", h.AdminGetCoupon)
				r.Put("/coupons/{id}", h.AdminUpdateCoupon)
				r.Delete("/coupons/{id}", h.AdminDeleteCoupon)

				r.Get("/notifications", h.AdminListNotifications)
				r.Post("/notifications", h.AdminCreateNotification)
				r.Patch("/notifications/{id}", h.AdminUpdateNotification)
				r.Delete("/notifications/{id}", h.AdminDeleteNotification)

				r.Patch("/products/{id}/stock", h.SetProductStock)
			})
		})
	})
	return r
}

// imageURL resolves a stored image path against the configured base URL.
func (h *Handler) imageURL(path string) string {
	if path == "" || h.imageBaseURL == "" {
		return path
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return h.imageBaseURL + "/" + strings.TrimPrefix(path, "/")
}
