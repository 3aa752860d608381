package adapthttp

import (
	"errors"
	"net/http"

	"storefront/internal/domain"
)

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	items, err := s.products.GetAllProducts(r.Context())
	if err != nil {
		s.writeServerError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Product{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, fe := pathID(r, "product_id")
	if fe != nil {
		writeValidationError(w, *fe)
		return
	}
	p, err := s.products.GetProduct(r.Context(), id)
	if err != nil {
		s.writeServerError(w, r, err)
		return
	}
	if p == nil {
		writeDetail(w, http.StatusNotFound, "Product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var body productBody
	if !s.parseRequest(w, r, body.parse(r, true)) {
		return
	}

	p, err := s.products.CreateProduct(r.Context(), domain.Product{
		Name:        *body.Name,
		Description: body.Description,
		Price:       *body.price,
		Stock:       *body.Stock,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, fe := pathID(r, "product_id")
	if fe != nil {
		writeValidationError(w, *fe)
		return
	}
	var body productBody
	if !s.parseRequest(w, r, body.parse(r, false)) {
		return
	}

	p, err := s.products.UpdateProduct(r.Context(), id, domain.ProductPatch{
		Name:        body.Name,
		Description: body.Description,
		Price:       body.price,
		Stock:       body.Stock,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if p == nil {
		writeDetail(w, http.StatusNotFound, "Product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, fe := pathID(r, "product_id")
	if fe != nil {
		writeValidationError(w, *fe)
		return
	}
	ok, err := s.products.DeleteProduct(r.Context(), id)
	if err != nil {
		s.writeServerError(w, r, err)
		return
	}
	if !ok {
		writeDetail(w, http.StatusNotFound, "Product not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseRequest writes a 422 for a rejected request and reports whether the
// handler should continue.
func (s *Server) parseRequest(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return true
	}
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		writeValidationError(w, reqErr.fields...)
		return false
	}
	s.writeServerError(w, r, err)
	return false
}
