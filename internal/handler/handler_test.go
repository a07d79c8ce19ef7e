package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/parking-reservation/internal/booking"
	"github.com/iliyamo/parking-reservation/internal/config"
	"github.com/iliyamo/parking-reservation/internal/database"
	"github.com/iliyamo/parking-reservation/internal/handler"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository"
	"github.com/iliyamo/parking-reservation/internal/router"
	"github.com/iliyamo/parking-reservation/internal/testutil"
	"github.com/iliyamo/parking-reservation/internal/utils"
)

const secret = "test-secret"

type recordingInvalidator struct {
	mu   sync.Mutex
	lots []uint64
}

func (r *recordingInvalidator) Invalidate(_ context.Context, lotID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots = append(r.lots, lotID)
	return nil
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lots)
}

type fakeQueue struct {
	tasks []string
}

func (q *fakeQueue) Enqueue(_ context.Context, task string, _ any) (string, error) {
	q.tasks = append(q.tasks, task)
	return "job-1", nil
}

type server struct {
	e     *echo.Echo
	clock *booking.FixedClock
	inv   *recordingInvalidator
	queue *fakeQueue
	users *repository.UserRepo
	admin string
	alice string
	bob   string
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := config.Config{JWTSecret: secret, AccessTTLMin: 15, RefreshTTLDays: 1, BcryptCost: bcrypt.MinCost}

	lots := repository.NewLotRepo(db, database.SQLite)
	spots := repository.NewSpotRepo(db, database.SQLite)
	bookings := repository.NewBookingRepo(db, database.SQLite)
	users := repository.NewUserRepo(db, database.SQLite)

	s := &server{
		e:     echo.New(),
		clock: &booking.FixedClock{T: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
		inv:   &recordingInvalidator{},
		queue: &fakeQueue{},
		users: users,
	}
	ctrl := booking.NewController(db, booking.Repos{Lots: lots, Spots: spots, Bookings: bookings, Users: users}, s.inv, nil, nil)
	ctrl.SetClock(s.clock)

	passthrough := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	analytics := handler.NewAnalyticsHandler(repository.NewAnalyticsRepo(db))
	router.RegisterRoutes(s.e, db)
	router.RegisterAuth(s.e, handler.NewAuthHandler(cfg, users, repository.NewTokenRepo(db)), secret)
	router.RegisterLots(s.e, handler.NewLotHandler(lots, spots, ctrl), secret, passthrough)
	router.RegisterBookings(s.e, handler.NewBookingHandler(ctrl, s.queue, nil), analytics, secret, passthrough)
	router.RegisterAdmin(s.e, handler.NewAdminLotHandler(lots, spots, ctrl), analytics, secret)

	s.admin = token(t, testutil.InsertUser(t, db, "admin@example.com", model.RoleAdmin), model.RoleAdmin)
	s.alice = token(t, testutil.InsertUser(t, db, "alice@example.com", model.RoleUser), model.RoleUser)
	s.bob = token(t, testutil.InsertUser(t, db, "bob@example.com", model.RoleUser), model.RoleUser)
	return s
}

func token(t *testing.T, uid uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, uid, role, 15)
	require.NoError(t, err)
	return tok.Token
}

func (s *server) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *server) createLot(t *testing.T, capacity int, price string) model.ParkingLot {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/admin/lots", s.admin, echo.Map{
		"name": "North", "address": "1 Main St", "capacity": capacity, "price_per_hour": price,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.ParkingLot](t, rec)
}

func lotPath(id uint64, rest string) string {
	return "/v1/lots/" + itoa(id) + rest
}

func itoa(id uint64) string { return strconv.FormatUint(id, 10) }

func TestHealth(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/readyz", "", nil).Code)
}

func TestAuthFlow(t *testing.T) {
	s := newServer(t)
	type authResp struct {
		User struct {
			ID       uint64 `json:"id"`
			Username string `json:"username"`
			Role     string `json:"role"`
		} `json:"user"`
		Access  struct{ Token string } `json:"access"`
		Refresh struct{ Token string } `json:"refresh"`
	}

	rec := s.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{"email": "Carol@Example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{"email": "Carol@Example.com", "password": "correct horse"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[authResp](t, rec)
	assert.Equal(t, "carol", reg.User.Username)
	assert.Equal(t, model.RoleUser, reg.User.Role)

	rec = s.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{"email": "carol@example.com", "password": "correct horse"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{"email": "carol@example.com", "password": "wrong horse"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{"email": "carol@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[authResp](t, rec)

	rec = s.do(t, http.MethodGet, "/v1/me", login.Access.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[struct {
		ID    uint64 `json:"id"`
		Email string `json:"email"`
	}](t, rec)
	assert.Equal(t, reg.User.ID, me.ID)
	assert.Equal(t, "carol@example.com", me.Email)

	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": login.Refresh.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decode[authResp](t, rec)
	assert.NotEqual(t, login.Refresh.Token, rotated.Refresh.Token)

	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": login.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a rotated token is spent")

	rec = s.do(t, http.MethodPost, "/v1/auth/logout", rotated.Access.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": rotated.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": reg.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "logout without a token ends every session")

	_, err := s.users.DB.Exec("UPDATE users SET is_active = 0 WHERE id = ?", reg.User.ID)
	require.NoError(t, err)
	rec = s.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{"email": "carol@example.com", "password": "correct horse"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
