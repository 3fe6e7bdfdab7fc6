package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/bitfantasy/pdm/internal/config"
	"github.com/bitfantasy/pdm/internal/middleware"
	"github.com/bitfantasy/pdm/internal/pdm/repository"
	"github.com/bitfantasy/pdm/internal/pdm/service"
	"github.com/bitfantasy/pdm/internal/pdm/testutil"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type testEnv struct {
	router *gin.Engine
	token  string
}

func setupHandlerTest(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	router := testutil.SetupRouter()

	repos := repository.NewRepositories(db)
	svcs := service.NewServices(repos, nil, &config.Config{
		PDM: config.PDMConfig{MaxShareDepth: 32},
	})
	svcs.Version.SetNotifier(service.NewLogNotifier(), false)

	api := testutil.OptionalAuthGroup(router, "/api/v1")
	admin := testutil.AuthGroup(router, "/api/v1/admin")
	admin.Use(middleware.RequirePermission("pdm:admin"))
	NewHandlers(svcs).RegisterRoutes(api, admin)

	return &testEnv{router: router, token: testutil.DefaultTestToken()}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, want int) map[string]interface{} {
	t.Helper()
	w := testutil.DoRequest(e.router, method, path, body, e.token)
	if w.Code != want {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, path, want, w.Code, w.Body.String())
	}
	return testutil.ParseResponse(w)
}

func (e *testEnv) createTree(t *testing.T, name string) (treeID, rootID string) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/trees", map[string]interface{}{"name": name}, http.StatusCreated)
	data := testutil.Data(resp)
	tree := data["tree"].(map[string]interface{})
	root := data["root_structure"].(map[string]interface{})
	return tree["id"].(string), root["id"].(string)
}

func (e *testEnv) addNode(t *testing.T, treeID, parentID, name string, isMaster bool) map[string]interface{} {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/trees/"+treeID+"/nodes", map[string]interface{}{
		"parent_structure_id": parentID,
		"name":                name,
		"quantity":            1,
		"is_master":           isMaster,
	}, http.StatusCreated)
	return testutil.Data(resp)
}

func findStructure(t *testing.T, items []interface{}, id string) map[string]interface{} {
	t.Helper()
	for _, it := range items {
		row := it.(map[string]interface{})
		if row["id"] == id {
			return row
		}
	}
	t.Fatalf("structure %s not found in %d rows", id, len(items))
	return nil
}

func decimalOf(t *testing.T, v interface{}) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(fmt.Sprint(v))
	if err != nil {
		t.Fatalf("not a decimal: %v", v)
	}
	return d
}

func TestGenerateCodeFormat(t *testing.T) {
	env := setupHandlerTest(t)

	resp := env.do(t, http.MethodPost, "/api/v1/prefixes", map[string]interface{}{
		"name": "AAA", "code_type": "assembly",
	}, http.StatusCreated)
	prefixID := testutil.Data(resp)["id"].(string)

	resp = env.do(t, http.MethodGet, "/api/v1/prefixes/"+prefixID+"/preview", nil, http.StatusOK)
	if got := testutil.Data(resp)["preview_code"]; got != "AAA-A0001Z000" {
		t.Fatalf("expected preview AAA-A0001Z000, got %v", got)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/prefixes/"+prefixID+"/generate", map[string]interface{}{
		"name": "主板组件",
	}, http.StatusCreated)
	data := testutil.Data(resp)
	code := data["code"].(map[string]interface{})
	version := data["version"].(map[string]interface{})
	if code["code"] != "AAA-A0001Z000" {
		t.Fatalf("expected AAA-A0001Z000, got %v", code["code"])
	}
	if version["version"].(float64) != 1 || version["is_current"] != true {
		t.Fatalf("expected current version 1, got %v", version)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/prefixes/"+prefixID+"/generate", map[string]interface{}{
		"name": "电源组件",
	}, http.StatusCreated)
	code = testutil.Data(resp)["code"].(map[string]interface{})
	if code["code"] != "AAA-A0002Z000" {
		t.Fatalf("expected AAA-A0002Z000, got %v", code["code"])
	}
}

func TestPrefixResetRequiresAdmin(t *testing.T) {
	env := setupHandlerTest(t)

	resp := env.do(t, http.MethodPost, "/api/v1/prefixes", map[string]interface{}{
		"name": "BBB", "code_type": "part",
	}, http.StatusCreated)
	prefixID := testutil.Data(resp)["id"].(string)

	w := testutil.DoRequest(env.router, http.MethodPost, "/api/v1/admin/prefixes/"+prefixID+"/reset", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	plain := testutil.GenerateTestToken("user-002", "Plain User", []string{"pdm:read"})
	w = testutil.DoRequest(env.router, http.MethodPost, "/api/v1/admin/prefixes/"+prefixID+"/reset", nil, plain)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without permission, got %d", w.Code)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/admin/prefixes/"+prefixID+"/reset",
		map[string]interface{}{"start_number": 42}, http.StatusOK)
	if testutil.Data(resp)["next_number"].(float64) != 42 {
		t.Fatalf("expected next_number 42, got %v", testutil.Data(resp)["next_number"])
	}
}

func TestCreateTreeHasSingleRoot(t *testing.T) {
	env := setupHandlerTest(t)
	treeID, rootID := env.createTree(t, "整机 BOM")

	resp := env.do(t, http.MethodGet, "/api/v1/trees/"+treeID+"/structure", nil, http.StatusOK)
	items := testutil.Data(resp)["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("expected only the root structure, got %d", len(items))
	}
	root := findStructure(t, items, rootID)
	if root["level"].(float64) != 0 || root["parent_id"] != nil {
		t.Fatalf("root must be level 0 without parent, got %v", root)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/trees/"+treeID+"/versions", nil, http.StatusOK)
	versions := testutil.Data(resp)["items"].([]interface{})
	if len(versions) != 1 {
		t.Fatalf("expected version 1 to be opened, got %d versions", len(versions))
	}

	// 根结构不能删除
	w := testutil.DoRequest(env.router, http.MethodDelete, "/api/v1/trees/"+treeID+"/structures/"+rootID, nil, env.token)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 removing root, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAddMoveRemoveNode(t *testing.T) {
	env := setupHandlerTest(t)
	treeID, rootID := env.createTree(t, "装配树")

	a := env.addNode(t, treeID, rootID, "A", false)
	b := env.addNode(t, treeID, rootID, "B", false)
	c := env.addNode(t, treeID, a["id"].(string), "C", false)
	if c["level"].(float64) != 2 {
		t.Fatalf("expected level 2, got %v", c["level"])
	}

	// A 不能移到自己的子孙下
	w := testutil.DoRequest(env.router, http.MethodPost,
		"/api/v1/trees/"+treeID+"/structures/"+a["id"].(string)+"/move",
		map[string]interface{}{"new_parent_structure_id": c["id"]}, env.token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 moving under descendant, got %d: %s", w.Code, w.Body.String())
	}

	env.do(t, http.MethodPost, "/api/v1/trees/"+treeID+"/structures/"+a["id"].(string)+"/move",
		map[string]interface{}{"new_parent_structure_id": b["id"]}, http.StatusOK)

	resp := env.do(t, http.MethodGet, "/api/v1/trees/"+treeID+"/structure", nil, http.StatusOK)
	items := testutil.Data(resp)["items"].([]interface{})
	moved := findStructure(t, items, c["id"].(string))
	if moved["level"].(float64) != 3 {
		t.Fatalf("expected C at level 3 after move, got %v", moved["level"])
	}

	// 有子结构时不带 cascade 删除失败
	w = testutil.DoRequest(env.router, http.MethodDelete, "/api/v1/trees/"+treeID+"/structures/"+b["id"].(string), nil, env.token)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 without cascade, got %d", w.Code)
	}

	resp = env.do(t, http.MethodDelete, "/api/v1/trees/"+treeID+"/structures/"+b["id"].(string)+"?cascade=true", nil, http.StatusOK)
	if testutil.Data(resp)["removed_count"].(float64) != 3 {
		t.Fatalf("expected 3 removed, got %v", testutil.Data(resp)["removed_count"])
	}
}

func TestShareResolvesMasterQuantity(t *testing.T) {
	env := setupHandlerTest(t)
	treeA, rootA := env.createTree(t, "A 树")
	treeB, rootB := env.createTree(t, "B 树")

	x := env.addNode(t, treeA, rootA, "X", true)
	env.addNode(t, treeA, x["id"].(string), "Y", false)

	resp := env.do(t, http.MethodPost, "/api/v1/trees/"+treeB+"/share", map[string]interface{}{
		"source_structure_id": x["id"],
		"parent_structure_id": rootB,
	}, http.StatusCreated)
	shared := testutil.Data(resp)
	replica := shared["structure"].(map[string]interface{})
	if shared["cloned_count"].(float64) != 2 {
		t.Fatalf("expected 2 cloned structures, got %v", shared["cloned_count"])
	}
	if replica["source_structure_id"] != x["id"] || replica["is_master"] != false {
		t.Fatalf("replica must point at master, got %v", replica)
	}

	env.do(t, http.MethodPut, "/api/v1/trees/"+treeA+"/structures/"+x["id"].(string),
		map[string]interface{}{"quantity": "4"}, http.StatusOK)

	resp = env.do(t, http.MethodGet, "/api/v1/trees/"+treeB+"/structure?resolve=true", nil, http.StatusOK)
	row := findStructure(t, testutil.Data(resp)["items"].([]interface{}), replica["id"].(string))
	if row["is_shared"] != true || row["master_tree_id"] != treeA {
		t.Fatalf("expected shared row from tree A, got %v", row)
	}
	if !decimalOf(t, row["resolved_quantity"]).Equal(decimal.NewFromInt(4)) {
		t.Fatalf("expected resolved quantity 4, got %v", row["resolved_quantity"])
	}

	// 副本只读
	w := testutil.DoRequest(env.router, http.MethodPut, "/api/v1/trees/"+treeB+"/structures/"+replica["id"].(string),
		map[string]interface{}{"quantity": "2"}, env.token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 updating replica, got %d: %s", w.Code, w.Body.String())
	}

	resp = env.do(t, http.MethodGet, "/api/v1/structures/"+x["id"].(string)+"/replicas", nil, http.StatusOK)
	if n := len(testutil.Data(resp)["items"].([]interface{})); n != 1 {
		t.Fatalf("expected 1 replica, got %d", n)
	}

	// 共享到同一父结构下会违反唯一约束
	w = testutil.DoRequest(env.router, http.MethodPost, "/api/v1/trees/"+treeB+"/share", map[string]interface{}{
		"source_structure_id": x["id"],
		"parent_structure_id": rootB,
	}, env.token)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate share, got %d: %s", w.Code, w.Body.String())
	}
}

func TestApproveDraftVersionIsInvalidTransition(t *testing.T) {
	env := setupHandlerTest(t)
	treeID, _ := env.createTree(t, "版本树")

	resp := env.do(t, http.MethodGet, "/api/v1/trees/"+treeID+"/versions", nil, http.StatusOK)
	version := testutil.Data(resp)["items"].([]interface{})[0].(map[string]interface{})
	versionID := version["id"].(string)

	resp = env.do(t, http.MethodPost, "/api/v1/tree-versions/"+versionID+"/approve", nil, http.StatusConflict)
	if data := testutil.Data(resp); data["error"] != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION, got %v", data)
	}

	env.do(t, http.MethodPost, "/api/v1/tree-versions/"+versionID+"/submit", nil, http.StatusOK)
	resp = env.do(t, http.MethodPost, "/api/v1/tree-versions/"+versionID+"/approve",
		map[string]interface{}{"comment": "ok"}, http.StatusOK)
	if testutil.Data(resp)["status"] != "approved" || testutil.Data(resp)["approved_by"] != "test-user-001" {
		t.Fatalf("expected approved by test user, got %v", testutil.Data(resp))
	}
}

func TestNotFoundAndValidationEnvelope(t *testing.T) {
	env := setupHandlerTest(t)

	resp := env.do(t, http.MethodGet, "/api/v1/trees/missing", nil, http.StatusNotFound)
	if resp["success"] != false {
		t.Fatalf("expected success=false, got %v", resp)
	}

	treeID, rootID := env.createTree(t, "校验树")
	resp = env.do(t, http.MethodPost, "/api/v1/trees/"+treeID+"/nodes", map[string]interface{}{
		"parent_structure_id": rootID,
		"name":                "负数",
		"quantity":            -1,
	}, http.StatusBadRequest)
	if testutil.Data(resp)["field"] != "quantity" {
		t.Fatalf("expected field quantity, got %v", testutil.Data(resp))
	}
}
