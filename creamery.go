// Package creamery is the storefront service: checkout, order tracking,
// addresses, profiles and uploads on top of the catalog, cart and favorites.
package creamery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"goflare.io/creamery/address"
	"goflare.io/creamery/catalog"
	"goflare.io/creamery/event"
	"goflare.io/creamery/models"
	"goflare.io/creamery/models/enum"
	"goflare.io/creamery/order"
	"goflare.io/creamery/payment"
	"goflare.io/creamery/storage"
	"goflare.io/creamery/user"
)

var (
	ErrNotAuthenticated     = errors.New("sign in to place an order")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrAddressRequired      = errors.New("a delivery address is required")
	ErrInvalidPaymentMethod = errors.New("unknown payment method")
	ErrPaymentUnavailable   = errors.New("card payments are not configured")
	ErrInvalidOrderStatus   = errors.New("unknown order status")
	ErrInvalidImageType     = errors.New("only jpg, jpeg, png, gif and webp images are accepted")
	ErrEmptyUpload          = errors.New("upload is empty")
	ErrMissingUserID        = errors.New("user id is required")
	ErrCatalogUnavailable   = errors.New("catalog is not configured")
	ErrStorageUnavailable   = errors.New("object storage is not configured")
)

// EstimatedDeliveryDelay is added to the placement time of every order.
const EstimatedDeliveryDelay = 72 * time.Hour

const (
	defaultWorkers  = 10
	defaultCurrency = "inr"
)

type Service interface {
	PlaceOrder(ctx context.Context, session *Session, req PlaceOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, userID string, limit, offset uint64) ([]*models.Order, error)
	TrackOrder(ctx context.Context, orderID string) (*Tracking, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status enum.OrderStatus) error

	ListAddresses(ctx context.Context, userID string) ([]models.Address, error)
	AddAddress(ctx context.Context, userID string, a models.Address) (*models.Address, error)
	UpdateAddress(ctx context.Context, userID string, a models.Address) error
	DeleteAddress(ctx context.Context, userID, addressID string) error
	SetDefaultAddress(ctx context.Context, userID, addressID string) error

	SaveProfile(ctx context.Context, profile models.UserProfile) (*models.UserProfile, error)
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)

	RemoveProduct(ctx context.Context, productID string) error
	UploadProductImage(ctx context.Context, productID, filename string, data []byte) (string, error)
	ProductImageURL(ctx context.Context, productID string) (string, error)
	UploadProfilePicture(ctx context.Context, userID, filename string, data []byte) (string, error)
	DeleteProfilePicture(ctx context.Context, userID string) error

	ProcessEvent(ctx context.Context, event *stripe.Event) error
	Start(ctx context.Context) error
	Shutdown()
}

// PlaceOrderRequest is the checkout form. An empty AddressID picks the
// default address, an empty PaymentMethod means cash on delivery and an empty
// Email falls back to the email the session signed in with.
type PlaceOrderRequest struct {
	AddressID     string
	PaymentMethod enum.PaymentMethod
	Email         string
}

// Tracking is an order together with its position on the delivery timeline.
type Tracking struct {
	Order     *models.Order        `json:"order"`
	ShortCode string               `json:"shortCode"`
	Steps     []order.ProgressStep `json:"steps"`
	Cancelled bool                 `json:"cancelled"`
}

// Transactor runs fn inside a database transaction. The serializable variant
// may run fn more than once.
type Transactor interface {
	ExecuteTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
	ExecuteSerializableTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Dependencies wires a Service. Catalog, Gateway and Objects may be nil; the
// operations that need them then fail.
type Dependencies struct {
	Catalog   *catalog.Catalog
	Orders    order.Repository
	Addresses address.Repository
	Users     user.Repository
	Events    event.Repository
	Gateway   payment.Gateway
	Objects   storage.ObjectStore

	TransactionManager Transactor
	EventManager       *EventManager

	Currency string
	Workers  int
}

type service struct {
	catalog *catalog.Catalog
	order   order.Repository
	address address.Repository
	user    user.Repository
	event   event.Repository
	gateway payment.Gateway
	objects storage.ObjectStore

	transactionManager Transactor
	events             *EventManager
	workerPool         *WorkerPool

	currency string
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(deps Dependencies, logger *zap.Logger) Service {
	if deps.Currency == "" {
		deps.Currency = defaultCurrency
	}
	if deps.Workers <= 0 {
		deps.Workers = defaultWorkers
	}
	s := &service{
		catalog:            deps.Catalog,
		order:              deps.Orders,
		address:            deps.Addresses,
		user:               deps.Users,
		event:              deps.Events,
		gateway:            deps.Gateway,
		objects:            deps.Objects,
		transactionManager: deps.TransactionManager,
		events:             deps.EventManager,
		currency:           deps.Currency,
		logger:             logger,
		now:                func() time.Time { return time.Now().UTC() },
	}
	s.workerPool = NewWorkerPool(deps.Workers, s, logger)
	s.registerEventHandlers()

	return s
}

// Start subscribes to payment events and, when a catalog is wired, to the
// product changes made by other instances.
func (s *service) Start(ctx context.Context) error {
	if err := s.events.SubscribeToEvents(ctx, s.workerPool); err != nil {
		s.logger.Error("Failed to subscribe to payment events", zap.Error(err))
		return err
	}
	if s.catalog != nil {
		if err := s.events.SubscribeToCatalog(s.catalog); err != nil {
			s.logger.Error("Failed to subscribe to catalog events", zap.Error(err))
			return err
		}
	}
	return nil
}

func (s *service) Shutdown() {
	s.events.Close()
	s.workerPool.Shutdown()
}

// PlaceOrder turns the cart of session into an order. The cart is cleared
// only once the order is stored.
func (s *service) PlaceOrder(ctx context.Context, session *Session, req PlaceOrderRequest) (*models.Order, error) {
	userID := session.UserID()
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	// 1. 獲得購物車
	lines := session.Cart.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	method := req.PaymentMethod
	if method == "" {
		method = enum.PaymentMethodCOD
	}
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	// 2. 獲得收貨地址
	deliverTo, err := s.deliveryAddress(ctx, userID, req.AddressID)
	if err != nil {
		return nil, err
	}

	email := req.Email
	if email == "" {
		email = session.Email()
	}

	// 3. 建立訂單
	now := s.now()
	orderModel := &models.Order{
		ID:                uuid.NewString(),
		UserID:            userID,
		UserEmail:         email,
		Items:             make([]models.OrderItem, 0, len(lines)),
		Address:           *deliverTo,
		PaymentMethod:     method,
		Status:            enum.OrderStatusPlaced,
		EstimatedDelivery: now.Add(EstimatedDeliveryDelay),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, line := range lines {
		orderModel.Items = append(orderModel.Items, models.OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Price:     line.UnitPrice,
			Quantity:  line.Quantity,
			ImageURL:  line.ImageURL,
		})
		orderModel.Total += line.Subtotal()
	}

	// 4. 卡片付款先建立 PaymentIntent
	if method == enum.PaymentMethodCard {
		if s.gateway == nil {
			return nil, ErrPaymentUnavailable
		}
		intentID, err := s.gateway.CreatePaymentIntent(ctx, orderModel.Total, s.currency, map[string]string{
			"order_id": orderModel.ID,
			"user_id":  userID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start payment: %w", err)
		}
		orderModel.PaymentIntentID = intentID
	}

	// 5. 寫入訂單
	if err = s.order.CreateOrder(ctx, nil, orderModel); err != nil {
		if orderModel.PaymentIntentID != "" {
			s.cancelPaymentIntent(ctx, orderModel.PaymentIntentID)
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	// 6. 清空購物車
	session.Cart.ClearCart()

	s.logger.Info("Order placed",
		zap.String("order_id", orderModel.ID),
		zap.String("user_id", userID),
		zap.Float64("total", orderModel.Total),
		zap.String("payment_method", string(method)))
	s.publishOrderEvent(ctx, SubjectOrderCreated, orderModel, true)

	return orderModel, nil
}

// cancelPaymentIntent releases the intent of an order that was never stored.
// The order error is what the caller sees, so a failure here is only logged.
func (s *service) cancelPaymentIntent(ctx context.Context, paymentIntentID string) {
	if err := s.gateway.CancelPaymentIntent(context.WithoutCancel(ctx), paymentIntentID); err != nil {
		s.logger.Warn("Failed to cancel payment intent of unsaved order",
			zap.String("payment_intent_id", paymentIntentID), zap.Error(err))
	}
}

func (s *service) deliveryAddress(ctx context.Context, userID, addressID string) (*models.Address, error) {
	if addressID != "" {
		a, err := s.address.Get(ctx, nil, userID, addressID)
		if errors.Is(err, address.ErrAddressNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrAddressRequired, err)
		}
		return a, err
	}

	a, err := s.address.Default(ctx, nil, userID)
	if errors.Is(err, address.ErrAddressNotFound) {
		return nil, ErrAddressRequired
	}
	return a, err
}

func (s *service) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.order.GetOrder(ctx, nil, orderID)
}

func (s *service) ListOrders(ctx context.Context, userID string, limit, offset uint64) ([]*models.Order, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	return s.order.ListOrders(ctx, nil, userID, limit, offset)
}

func (s *service) TrackOrder(ctx context.Context, orderID string) (*Tracking, error) {
	orderModel, err := s.order.GetOrder(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	return &Tracking{
		Order:     orderModel,
		ShortCode: order.ShortCode(orderModel.ID),
		Steps:     order.Progress(orderModel.Status),
		Cancelled: orderModel.Status == enum.OrderStatusCancelled,
	}, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID string, status enum.OrderStatus) error {
	if !status.Valid() {
		return ErrInvalidOrderStatus
	}

	now := s.now()
	if err := s.order.UpdateOrderStatus(ctx, nil, orderID, status, now); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	s.logger.Info("Order status updated", zap.String("order_id", orderID), zap.String("status", string(status)))

	orderModel, err := s.order.GetOrder(ctx, nil, orderID)
	if err != nil {
		s.logger.Warn("Failed to reload order after status update", zap.String("order_id", orderID), zap.Error(err))
		orderModel = &models.Order{ID: orderID, Status: status}
	}
	s.publishOrderEvent(ctx, SubjectOrderStatusUpdated, orderModel, false)
	return nil
}

func (s *service) ListAddresses(ctx context.Context, userID string) ([]models.Address, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	return s.address.List(ctx, nil, userID)
}

func (s *service) AddAddress(ctx context.Context, userID string, a models.Address) (*models.Address, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	if err := address.Validate(a); err != nil {
		return nil, err
	}

	a.ID = uuid.NewString()
	a.UserID = userID
	a.CreatedAt = s.now()

	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.address.Add(ctx, tx, &a)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add address: %w", err)
	}
	return &a, nil
}

func (s *service) UpdateAddress(ctx context.Context, userID string, a models.Address) error {
	if userID == "" {
		return ErrMissingUserID
	}
	if err := address.Validate(a); err != nil {
		return err
	}
	a.UserID = userID
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.address.Update(ctx, tx, a)
	})
}

func (s *service) DeleteAddress(ctx context.Context, userID, addressID string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.address.Delete(ctx, tx, userID, addressID)
	})
}

func (s *service) SetDefaultAddress(ctx context.Context, userID, addressID string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.address.SetDefault(ctx, tx, userID, addressID)
	})
}

func (s *service) SaveProfile(ctx context.Context, profile models.UserProfile) (*models.UserProfile, error) {
	if profile.ID == "" {
		return nil, ErrMissingUserID
	}
	profile.UpdatedAt = s.now()
	return s.user.Upsert(ctx, nil, profile)
}

func (s *service) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	return s.user.Get(ctx, nil, userID)
}

// RemoveProduct deletes a product and then its image. A product without an
// image is not an error.
func (s *service) RemoveProduct(ctx context.Context, productID string) error {
	if s.catalog == nil {
		return ErrCatalogUnavailable
	}
	if err := s.catalog.RemoveProduct(ctx, productID); err != nil {
		return err
	}
	if s.objects == nil {
		return nil
	}

	path := storage.ProductImagePath(productID)
	if err := s.objects.Delete(ctx, path); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.logger.Warn("Failed to delete product image", zap.String("path", path), zap.Error(err))
	}
	return nil
}

// UploadProductImage stores the image of a product and points the product at it.
func (s *service) UploadProductImage(ctx context.Context, productID, filename string, data []byte) (string, error) {
	if s.catalog == nil {
		return "", ErrCatalogUnavailable
	}
	if s.objects == nil {
		return "", ErrStorageUnavailable
	}
	if err := checkUpload(filename, data); err != nil {
		return "", err
	}

	url, err := s.objects.Put(ctx, storage.ProductImagePath(productID), storage.ContentType(filename), data)
	if err != nil {
		return "", fmt.Errorf("failed to upload product image: %w", err)
	}

	if _, err = s.catalog.UpdateProductFields(ctx, productID, models.ProductFields{ImageURL: &url}); err != nil {
		return "", err
	}
	return url, nil
}

// ProductImageURL returns the URL of the uploaded image of a product, or an
// empty string when none was uploaded.
func (s *service) ProductImageURL(ctx context.Context, productID string) (string, error) {
	if s.objects == nil {
		return "", ErrStorageUnavailable
	}
	url, err := s.objects.URL(ctx, storage.ProductImagePath(productID))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return "", nil
	}
	return url, err
}

// UploadProfilePicture stores a new picture under a unique name and sets it
// as the user's photo.
func (s *service) UploadProfilePicture(ctx context.Context, userID, filename string, data []byte) (string, error) {
	if userID == "" {
		return "", ErrMissingUserID
	}
	if s.objects == nil {
		return "", ErrStorageUnavailable
	}
	if err := checkUpload(filename, data); err != nil {
		return "", err
	}

	now := s.now()
	path := storage.ProfilePicturePath(userID, storage.UniqueFilename(filename, userID, now))
	url, err := s.objects.Put(ctx, path, storage.ContentType(filename), data)
	if err != nil {
		return "", fmt.Errorf("failed to upload profile picture: %w", err)
	}

	if err = s.user.SetPhotoURL(ctx, nil, userID, url, now); err != nil {
		return "", err
	}
	return url, nil
}

// DeleteProfilePicture removes the stored picture of a user and clears the
// photo URL. Photos hosted elsewhere are only unlinked.
func (s *service) DeleteProfilePicture(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrMissingUserID
	}
	if s.objects == nil {
		return ErrStorageUnavailable
	}

	profile, err := s.user.Get(ctx, nil, userID)
	if err != nil {
		return err
	}
	if profile.PhotoURL == "" {
		return nil
	}

	// 1. 刪除儲存的圖片
	if path, ok := s.objects.PathOf(profile.PhotoURL); ok {
		if err = s.objects.Delete(ctx, path); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("failed to delete profile picture: %w", err)
		}
	}

	// 2. 清除使用者的照片
	return s.user.SetPhotoURL(ctx, nil, userID, "", s.now())
}

func checkUpload(filename string, data []byte) error {
	if !storage.IsValidImageType(filename) {
		return ErrInvalidImageType
	}
	if len(data) == 0 {
		return ErrEmptyUpload
	}
	return nil
}
