package strapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
)

// GigRepoImpl stores venues and gigs in a Strapi CMS through its REST API.
type GigRepoImpl struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewGigRepo(baseURL, token string, timeout time.Duration) *GigRepoImpl {
	return &GigRepoImpl{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type venueAttrs struct {
	ID           int64  `json:"id,omitempty"`
	Name         string `json:"name"`
	Address      string `json:"address,omitempty"`
	Website      string `json:"website,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
}

type gigAttrs struct {
	ID          int64  `json:"id,omitempty"`
	DocumentID  string `json:"documentId,omitempty"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Price       string `json:"price,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Venue       int64  `json:"venue,omitempty"`
}

type pagination struct {
	Total int `json:"total"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
	Meta struct {
		Pagination pagination `json:"pagination"`
	} `json:"meta"`
}

type itemResponse[T any] struct {
	Data T `json:"data"`
}

func (r *GigRepoImpl) FindVenueByName(ctx context.Context, name string) (*entity.Venue, error) {
	q := url.Values{}
	q.Set("filters[name][$eqi]", name)
	q.Set("pagination[pageSize]", "1")
	var out listResponse[venueAttrs]
	if err := r.do(ctx, http.MethodGet, "/api/venues", q, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, repository.ErrNotFound
	}
	v := out.Data[0]
	return &entity.Venue{ID: v.ID, Name: v.Name, Address: v.Address, Website: v.Website, Neighborhood: v.Neighborhood}, nil
}

func (r *GigRepoImpl) CreateVenue(ctx context.Context, venue entity.Venue) (int64, error) {
	body := itemResponse[venueAttrs]{Data: venueAttrs{
		Name:         venue.Name,
		Address:      venue.Address,
		Website:      venue.Website,
		Neighborhood: venue.Neighborhood,
	}}
	var out itemResponse[venueAttrs]
	if err := r.do(ctx, http.MethodPost, "/api/venues", nil, body, &out); err != nil {
		return 0, err
	}
	if out.Data.ID == 0 {
		return 0, fmt.Errorf("create venue %q: response carried no id", venue.Name)
	}
	return out.Data.ID, nil
}

func (r *GigRepoImpl) FindGig(ctx context.Context, title string, from, to time.Time) (int64, error) {
	q := url.Values{}
	q.Set("filters[title][$eqi]", title)
	q.Set("filters[date][$gte]", from.UTC().Format(time.RFC3339Nano))
	q.Set("filters[date][$lt]", to.UTC().Format(time.RFC3339Nano))
	q.Set("pagination[pageSize]", "1")
	var out listResponse[gigAttrs]
	if err := r.do(ctx, http.MethodGet, "/api/gigs", q, nil, &out); err != nil {
		return 0, err
	}
	if len(out.Data) == 0 {
		return 0, repository.ErrNotFound
	}
	return out.Data[0].ID, nil
}

func (r *GigRepoImpl) CreateGig(ctx context.Context, gig entity.Gig, venueID int64) (int64, error) {
	body := itemResponse[gigAttrs]{Data: gigAttrs{
		Title:       gig.Title,
		Date:        gig.Date.UTC().Format(time.RFC3339),
		Price:       gig.Price,
		Description: gig.Description,
		URL:         gig.SourceURL,
		ImageURL:    gig.ImageURL,
		Venue:       venueID,
	}}
	var out itemResponse[gigAttrs]
	if err := r.do(ctx, http.MethodPost, "/api/gigs", nil, body, &out); err != nil {
		return 0, err
	}
	if out.Data.ID == 0 {
		return 0, fmt.Errorf("create gig %q: response carried no id", gig.Title)
	}
	return out.Data.ID, nil
}

// DeleteAllGigs calls the custom bulk endpoint. 403, 404 and 405 mean it is not
// available to this token and map to ErrBulkDeleteUnavailable.
func (r *GigRepoImpl) DeleteAllGigs(ctx context.Context) (int, error) {
	var out struct {
		Data struct {
			Deleted int `json:"deleted"`
		} `json:"data"`
	}
	err := r.do(ctx, http.MethodPost, "/api/gigs/deleteAll", nil, nil, &out)
	var se *repository.StatusError
	if errors.As(err, &se) &&
		(se.StatusCode == http.StatusForbidden || se.StatusCode == http.StatusMethodNotAllowed || se.StatusCode == http.StatusNotFound) {
		return 0, fmt.Errorf("%w: %v", repository.ErrBulkDeleteUnavailable, err)
	}
	if err != nil {
		return 0, err
	}
	return out.Data.Deleted, nil
}

func (r *GigRepoImpl) ListGigs(ctx context.Context, pageSize int) (*entity.GigPage, error) {
	q := url.Values{}
	q.Set("pagination[pageSize]", strconv.Itoa(pageSize))
	q.Set("fields[0]", "documentId")
	var out listResponse[gigAttrs]
	if err := r.do(ctx, http.MethodGet, "/api/gigs", q, nil, &out); err != nil {
		return nil, err
	}
	page := &entity.GigPage{Total: out.Meta.Pagination.Total}
	for _, g := range out.Data {
		page.Items = append(page.Items, entity.GigRef{ID: g.ID, DocumentID: g.DocumentID})
	}
	if page.Total < len(page.Items) {
		page.Total = len(page.Items)
	}
	return page, nil
}

func (r *GigRepoImpl) DeleteGig(ctx context.Context, ref entity.GigRef) error {
	key := ref.DocumentID
	if key == "" {
		key = strconv.FormatInt(ref.ID, 10)
	}
	return r.do(ctx, http.MethodDelete, "/api/gigs/"+url.PathEscape(key), nil, nil, nil)
}

// do sends a JSON request and decodes the response into out when out is non-nil.
func (r *GigRepoImpl) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := r.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("strapi %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &repository.StatusError{Op: "strapi " + method + " " + path, StatusCode: resp.StatusCode, Body: string(msg)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
