package admin_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maxpert/unitsffi/admin"
	"github.com/maxpert/unitsffi/bind"
	"github.com/maxpert/unitsffi/cfg"
	"github.com/maxpert/unitsffi/native/nativetest"
	"github.com/maxpert/unitsffi/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Data    json.RawMessage `json:"data"`
	HasMore bool            `json:"has_more"`
	LastKey string          `json:"last_key"`
	Error   string          `json:"error"`
}

func newServer(t *testing.T) (*httptest.Server, *bind.Runtime) {
	t.Helper()
	t.Setenv("UNITSFFI_ADMIN_SECRET", "")

	reg, _ := nativetest.Registry(t)
	g, err := units.NewGraph()
	require.NoError(t, err)
	rt := bind.NewRuntime(reg, g, bind.RuntimeConfig{})
	t.Cleanup(func() { _ = rt.Close() })

	mux := http.NewServeMux()
	admin.RegisterRoutes(mux, admin.NewAdminHandlers(reg, rt))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, rt
}

func request(t *testing.T, method, url string, headers map[string]string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func get(t *testing.T, url string) (int, envelope) {
	return request(t, http.MethodGet, url, nil)
}

func TestListTypes(t *testing.T) {
	srv, rt := newServer(t)
	v, err := rt.New(units.TypeVec3, 1, 2, 3)
	require.NoError(t, err)
	defer v.Close()

	status, env := get(t, srv.URL+"/admin/types")
	require.Equal(t, http.StatusOK, status)

	var types []struct {
		Name      string   `json:"name"`
		Bases     []string `json:"bases"`
		Ancestors []string `json:"ancestors"`
		Live      int      `json:"live"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &types))
	require.Len(t, types, 5)
	assert.Equal(t, "Vec4", types[4].Name)
	assert.Equal(t, []string{"Vec3"}, types[4].Bases)
	assert.Equal(t, []string{"Vec3", "X", "Y", "Z"}, types[4].Ancestors)
	assert.Equal(t, 1, types[3].Live)
	assert.Equal(t, 0, types[0].Live)
}

func TestDescribeType(t *testing.T) {
	srv, _ := newServer(t)

	status, env := get(t, srv.URL+"/admin/types/Vec4")
	require.Equal(t, http.StatusOK, status)

	var info struct {
		Destructor   string            `json:"destructor"`
		Casts        map[string]string `json:"casts"`
		Constructors []struct {
			Symbol string   `json:"symbol"`
			Fields []string `json:"fields"`
		} `json:"constructors"`
		Fields []struct {
			Field      string `json:"field"`
			DeclaredBy string `json:"declared_by"`
			Getter     string `json:"getter"`
		} `json:"fields"`
		Methods []struct {
			Name       string `json:"name"`
			DeclaredBy string `json:"declared_by"`
		} `json:"methods"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, "Vec4_Destroy", info.Destructor)
	assert.Equal(t, map[string]string{"Vec3": "Vec4_AsVec3"}, info.Casts)
	require.Len(t, info.Constructors, 2)
	assert.Equal(t, "Vec4_Create", info.Constructors[0].Symbol)
	assert.Equal(t, []string{"x", "y", "z", "d"}, info.Constructors[1].Fields)

	fields := map[string]string{}
	for _, f := range info.Fields {
		fields[f.Field] = f.DeclaredBy
	}
	assert.Equal(t, map[string]string{"d": "Vec4", "x": "X", "y": "Y", "z": "Z"}, fields)

	methods := map[string]string{}
	for _, m := range info.Methods {
		methods[m.Name] = m.DeclaredBy
	}
	assert.Equal(t, "Vec4", methods["Print"])
	assert.Equal(t, "Vec3", methods["GetVec3"])
	assert.Equal(t, "X", methods["IsZero"])

	status, env = get(t, srv.URL+"/admin/types/W")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, env.Error, "unknown type")
}

func TestListFunctions(t *testing.T) {
	srv, _ := newServer(t)

	status, env := get(t, srv.URL+"/admin/functions")
	require.Equal(t, http.StatusOK, status)

	var funcs []struct {
		Name      string `json:"name"`
		Signature string `json:"signature"`
		Declared  string `json:"declared"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &funcs))
	require.Len(t, funcs, 3)
	assert.Equal(t, units.FuncSum, funcs[0].Name)
	assert.Equal(t, "int Units_Sum(X*, Y*, Z*)", funcs[0].Signature)
	assert.Equal(t, funcs[0].Signature, funcs[0].Declared)
}

func TestAllocationsPaging(t *testing.T) {
	srv, rt := newServer(t)
	v, err := rt.New(units.TypeVec3, 1, 2, 3)
	require.NoError(t, err)
	defer v.Close()
	x, err := rt.New(units.TypeX, 4)
	require.NoError(t, err)
	defer x.Close()

	type allocation struct {
		ID      uint64 `json:"id"`
		Type    string `json:"type"`
		Owned   bool   `json:"owned"`
		Objects int    `json:"objects"`
		Views   []struct {
			Types []string `json:"types"`
		} `json:"views"`
	}

	status, env := get(t, srv.URL+"/admin/allocations?limit=1")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.HasMore)
	require.NotEmpty(t, env.LastKey)

	var first []allocation
	require.NoError(t, json.Unmarshal(env.Data, &first))
	require.Len(t, first, 1)
	assert.Equal(t, units.TypeVec3, first[0].Type)
	assert.True(t, first[0].Owned)
	assert.Equal(t, 1, first[0].Objects)
	assert.Len(t, first[0].Views, 4)

	status, env = get(t, srv.URL+"/admin/allocations?limit=1&from="+env.LastKey)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, env.HasMore)
	var second []allocation
	require.NoError(t, json.Unmarshal(env.Data, &second))
	require.Len(t, second, 1)
	assert.Equal(t, units.TypeX, second[0].Type)

	status, env = get(t, srv.URL+"/admin/allocations?limit=0")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Error, "limit must be positive")

	status, _ = get(t, srv.URL+"/admin/allocations?from=abc")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAllocationStatsAndReclaim(t *testing.T) {
	srv, rt := newServer(t)
	leaked, err := rt.New(units.TypeVec4)
	require.NoError(t, err)
	_, err = rt.New(units.TypeVec4, 1, 2, 3, 4)
	require.NoError(t, err)

	status, env := get(t, srv.URL+"/admin/allocations/stats")
	require.Equal(t, http.StatusOK, status)
	var stats struct {
		ByType map[string]int `json:"by_type"`
		Total  int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, map[string]int{"Vec4": 2}, stats.ByType)
	assert.Equal(t, 2, stats.Total)

	status, env = request(t, http.MethodPost, srv.URL+"/admin/allocations/reclaim", nil)
	require.Equal(t, http.StatusOK, status)
	var reclaimed struct {
		Reclaimed int `json:"reclaimed"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reclaimed))
	assert.Equal(t, 2, reclaimed.Reclaimed)
	assert.True(t, leaked.Released())
	assert.Empty(t, rt.AllocationStats())
}

func TestLibrary(t *testing.T) {
	srv, rt := newServer(t)
	_, err := rt.Invoke(units.FuncLiveCount)
	require.NoError(t, err)

	status, env := get(t, srv.URL+"/admin/library")
	require.Equal(t, http.StatusOK, status)

	var lib struct {
		Path     string   `json:"path"`
		Loads    int      `json:"loads"`
		Digest   string   `json:"digest"`
		Types    []string `json:"types"`
		Resolved []string `json:"resolved"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &lib))
	assert.NotEmpty(t, lib.Path)
	assert.Equal(t, 1, lib.Loads)
	assert.Len(t, lib.Digest, 16)
	assert.Equal(t, []string{"X", "Y", "Z", "Vec3", "Vec4"}, lib.Types)
	assert.Contains(t, lib.Resolved, units.FuncLiveCount)
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := newServer(t)

	previous := cfg.Config.Admin.Secret
	cfg.Config.Admin.Secret = "s3cret"
	t.Cleanup(func() { cfg.Config.Admin.Secret = previous })

	tests := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"malformed bearer", map[string]string{"Authorization": "Basic abc"}, http.StatusUnauthorized},
		{"wrong secret", map[string]string{"X-Unitsffi-Secret": "nope"}, http.StatusUnauthorized},
		{"secret header", map[string]string{"X-Unitsffi-Secret": "s3cret"}, http.StatusOK},
		{"bearer", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := request(t, http.MethodGet, srv.URL+"/admin/types", tt.headers)
			assert.Equal(t, tt.status, status)
		})
	}
}
