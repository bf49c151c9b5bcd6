package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	catalogapp "github.com/mealtracker/backend/internal/application/catalog"
	"github.com/mealtracker/backend/internal/domain/identity"
	"github.com/mealtracker/backend/internal/interfaces/http/middleware"
)

// ProductService is the part of the catalog application service the HTTP layer uses
type ProductService interface {
	Create(ctx context.Context, req catalogapp.ProductRequest, principal *identity.Principal, asPrivate bool) (*catalogapp.ProductResponse, error)
	Read(ctx context.Context, id uuid.UUID, principal *identity.Principal) (*catalogapp.ProductResponse, error)
	Search(ctx context.Context, pageNo int, category, name string, principal *identity.Principal) (*catalogapp.ProductPage, error)
	Update(ctx context.Context, id uuid.UUID, req catalogapp.ProductRequest, principal *identity.Principal) (*catalogapp.ProductResponse, error)
	Delete(ctx context.Context, id uuid.UUID, principal *identity.Principal) error
}

// ProductHandler handles product-related HTTP requests
type ProductHandler struct {
	BaseHandler
	productService ProductService
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(productService ProductService) *ProductHandler {
	return &ProductHandler{
		productService: productService,
	}
}

// ProductSearchQuery holds the query parameters of a product search
type ProductSearchQuery struct {
	PageNo   int    `form:"pageNo" binding:"min=0"`
	Category string `form:"category"`
	Name     string `form:"name"`
}

// CreateGlobal godoc
// @ID           createGlobalProduct
// @Summary      Create a global product
// @Description  Create a product visible to every caller. Requires the ADMIN role.
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        request body catalogapp.ProductRequest true "Product creation request"
// @Success      201 {object} APIResponse[catalogapp.ProductResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /products [post]
func (h *ProductHandler) CreateGlobal(c *gin.Context) {
	h.create(c, false)
}

// CreateCustom godoc
// @ID           createCustomProduct
// @Summary      Create a private product
// @Description  Create a product owned by, and visible only to, the caller.
// @Description  Each user may own at most 100 private products.
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        request body catalogapp.ProductRequest true "Product creation request"
// @Success      201 {object} APIResponse[catalogapp.ProductResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /products/custom [post]
func (h *ProductHandler) CreateCustom(c *gin.Context) {
	h.create(c, true)
}

func (h *ProductHandler) create(c *gin.Context, asPrivate bool) {
	var req catalogapp.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	product, err := h.productService.Create(c.Request.Context(), req, middleware.GetPrincipal(c), asPrivate)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, product)
}

// GetByID godoc
// @ID           getProductById
// @Summary      Get product by ID
// @Description  Retrieve a product. Private products are only visible to their owner.
// @Tags         products
// @Produce      json
// @Param        id path string true "Product ID" format(uuid)
// @Success      200 {object} APIResponse[catalogapp.ProductResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /products/{id} [get]
func (h *ProductHandler) GetByID(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}

	product, err := h.productService.Read(c.Request.Context(), id, middleware.GetPrincipal(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, product)
}

// Search godoc
// @ID           searchProducts
// @Summary      Search products
// @Description  Page through the global products and the caller's own, sorted by name.
// @Description  The name filter is a case-insensitive substring match.
// @Tags         products
// @Produce      json
// @Param        pageNo query int false "Zero-based page number" default(0) minimum(0)
// @Param        category query string false "Category filter" Enums(MEAT, VEGETABLES, FRUITS, DAIRY, CEREAL, FISH, NUTS, SWEETS, OTHER)
// @Param        name query string false "Name filter"
// @Success      200 {object} APIResponse[catalogapp.ProductPage]
// @Failure      400 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /products [get]
func (h *ProductHandler) Search(c *gin.Context) {
	var query ProductSearchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}

	page, err := h.productService.Search(c.Request.Context(), query.PageNo, query.Category, query.Name, middleware.GetPrincipal(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, page)
}

// Update godoc
// @ID           updateProduct
// @Summary      Update a product
// @Description  Replace the descriptive fields of a product. The owner never changes.
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        id path string true "Product ID" format(uuid)
// @Param        request body catalogapp.ProductRequest true "Product update request"
// @Success      202 {object} APIResponse[catalogapp.ProductResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /products/{id} [put]
func (h *ProductHandler) Update(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}

	var req catalogapp.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	product, err := h.productService.Update(c.Request.Context(), id, req, middleware.GetPrincipal(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, product)
}

// Delete godoc
// @ID           deleteProduct
// @Summary      Delete a product
// @Description  Delete a product. Global products require ADMIN, private ones their owner.
// @Tags         products
// @Param        id path string true "Product ID" format(uuid)
// @Success      204
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /products/{id} [delete]
func (h *ProductHandler) Delete(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}

	if err := h.productService.Delete(c.Request.Context(), id, middleware.GetPrincipal(c)); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

func (h *ProductHandler) productID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return uuid.Nil, false
	}
	return id, true
}

var _ ProductService = (*catalogapp.ProductService)(nil)
