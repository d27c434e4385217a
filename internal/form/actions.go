// internal/form/actions.go
//
// Forms subsystem: post-submit actions.
//
// Context
//   A FormDef lists the actions to run once the submit gate accepts the
//   values.  ExecuteActions dispatches to runStore, runCommand, runAudit, or
//   runWebhook in declaration order.
//
//   •  store persists through the backend REST client.  Its failure is
//      returned and stops the remaining actions, because the screen must
//      not update local state for a record the backend rejected.
//   •  command sends the payload to a sub-resource of the record being
//      edited (PATCH /users/7/change-password).  Like store, its failure is
//      returned.
//   •  audit writes a row to the submission table, including the client
//      metadata attached by requestinfo.Enrich.  Failures are logged.
//   •  webhook POSTs a JSON envelope through the retrying HTTP client.
//      Failures are logged.
//
// Style
//   Two-space sentence spacing, concise inline notes.
//
//------------------------------------------------------------------------------

package form

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/storedash/internal/apiclient"
	"github.com/yanizio/storedash/internal/auth"
	"github.com/yanizio/storedash/internal/metrics"
	"github.com/yanizio/storedash/internal/requestinfo"
)

// Store is the slice of the backend client the store and command actions
// need.
type Store interface {
	Create(ctx context.Context, resource string, body any) (map[string]any, error)
	Update(ctx context.Context, resource, id string, body any) (map[string]any, error)
	Command(ctx context.Context, method, resource, id, name string, body any) (map[string]any, error)
}

// ActionCtx carries request-scoped helpers for action execution.  Any
// dependency may be nil; the actions that need it then fail or skip.
type ActionCtx struct {
	Ctx      context.Context
	Store    Store
	DB       *sqlx.DB
	Hooks    *retryablehttp.Client
	RecordID string // Empty for create.
	Log      *zap.Logger
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ExecuteActions runs fd's actions over the clean payload.  It returns the
// record produced by the store action, if any.
func ExecuteActions(fd *FormDef, data map[string]any, actx ActionCtx) (map[string]any, error) {
	if actx.Ctx == nil {
		actx.Ctx = context.Background()
	}
	if actx.Log == nil {
		actx.Log = zap.L()
	}

	var record map[string]any
	for _, ac := range fd.Actions {
		switch ac.Type {
		case "store":
			rec, err := runStore(fd, data, actx)
			if err != nil {
				metrics.ActionFailures.WithLabelValues(ac.Type).Inc()
				return nil, err
			}
			record = rec
			if id := apiclient.RecordID(rec); id != "" {
				actx.RecordID = id
			}
		case "command":
			rec, err := runCommand(fd, ac.Params, data, actx)
			if err != nil {
				metrics.ActionFailures.WithLabelValues(ac.Type).Inc()
				return nil, err
			}
			if record == nil {
				record = rec
			}
		case "audit":
			if err := runAudit(fd, ac.Params, data, actx); err != nil {
				logErr(actx, fd.ID, ac.Type, err)
			}
		case "webhook":
			if err := runWebhook(fd, ac.Params, data, actx); err != nil {
				logErr(actx, fd.ID, ac.Type, err)
			}
		default:
			actx.Log.Warn("form action warning",
				zap.String("form", fd.ID), zap.String("action", ac.Type),
				zap.String("warning", "unsupported action"))
		}
	}
	return record, nil
}

// -----------------------------------------------------------------------------
// Store action
// -----------------------------------------------------------------------------

func runStore(fd *FormDef, data map[string]any, actx ActionCtx) (map[string]any, error) {
	if actx.Store == nil {
		return nil, errors.New("store action: no backend client")
	}
	if actx.RecordID == "" {
		return actx.Store.Create(actx.Ctx, fd.Resource, data)
	}
	return actx.Store.Update(actx.Ctx, fd.Resource, actx.RecordID, data)
}

// -----------------------------------------------------------------------------
// Command action
// -----------------------------------------------------------------------------

func runCommand(fd *FormDef, p map[string]any, data map[string]any, actx ActionCtx) (map[string]any, error) {
	if actx.Store == nil {
		return nil, errors.New("command action: no backend client")
	}
	if actx.RecordID == "" {
		return nil, errors.New("command action: no record id")
	}
	name, _ := p["path"].(string)
	method, _ := p["method"].(string)
	if method == "" {
		method = http.MethodPatch
	}
	return actx.Store.Command(actx.Ctx, strings.ToUpper(method), fd.Resource, actx.RecordID, name, data)
}

// -----------------------------------------------------------------------------
// Audit action
// -----------------------------------------------------------------------------

// redact returns data without password fields.
func redact(fd *FormDef, data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, f := range fd.Fields {
		if f.Type == "password" {
			delete(out, f.Name)
		}
	}
	return out
}

func runAudit(fd *FormDef, p map[string]any, data map[string]any, actx ActionCtx) error {
	if actx.DB == nil {
		return errors.New("audit action: no database")
	}
	table, _ := p["table"].(string)
	if table == "" {
		table = "form_submission"
	}
	if !tableName.MatchString(table) {
		return fmt.Errorf("audit action: invalid table name %q", table)
	}

	j, err := json.Marshal(redact(fd, data))
	if err != nil {
		return err
	}
	uid, _ := auth.UserID(actx.Ctx)
	client, _ := requestinfo.FromContext(actx.Ctx)

	_, err = actx.DB.ExecContext(
		actx.Ctx,
		fmt.Sprintf(`INSERT INTO %s (form_id, record_id, submitted_by, submitted_at, client_ip, client_agent, client_country, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, table),
		fd.ID,
		actx.RecordID,
		uid,
		time.Now().UTC(),
		client.IP,
		client.Agent(),
		client.Country,
		j,
	)
	return err
}

// -----------------------------------------------------------------------------
// Webhook action
// -----------------------------------------------------------------------------

func runWebhook(fd *FormDef, p map[string]any, data map[string]any, actx ActionCtx) error {
	url, _ := p["url"].(string)
	if url == "" {
		return errors.New("webhook action requires 'url'")
	}
	method, _ := p["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	payload, err := json.Marshal(map[string]any{
		"form_id":   fd.ID,
		"record_id": actx.RecordID,
		"data":      data,
	})
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(actx.Ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p {
		if strings.HasPrefix(k, "header.") {
			req.Header.Set(strings.TrimPrefix(k, "header."), fmt.Sprint(v))
		}
	}

	client := actx.Hooks
	if client == nil {
		client = apiclient.NewHTTP(2, 0, actx.Log)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func logErr(actx ActionCtx, formID, action string, err error) {
	metrics.ActionFailures.WithLabelValues(action).Inc()
	actx.Log.Error("form action failed",
		zap.String("form", formID), zap.String("action", action), zap.Error(err))
}
