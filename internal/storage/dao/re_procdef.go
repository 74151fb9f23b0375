package dao

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/model"
)

// ReProcDefDAO is the persistence gateway for ProcDef rows, grounded on
// ApfReProcdefDao (src/dao/apf_re_procdef_dao.rs). The original scopes
// get_lastest_by_key by key alone; this port adds company_id to the scope
// per spec §3's `(key, company_id, version)` uniqueness invariant.
type ReProcDefDAO struct{ gw *Gateway }

func NewReProcDefDAO(gw *Gateway) *ReProcDefDAO { return &ReProcDefDAO{gw: gw} }

func (d *ReProcDefDAO) GetByID(ctx context.Context, tx *sql.Tx, id string) (*model.ProcDef, error) {
	const op = "dao.ReProcDef.GetByID"
	row := d.gw.queryRow(ctx, tx, `select id, process_key, version, deployment_id, suspension_state,
		is_deleted, company_id, deployer_id, update_user_id, update_time
		from apf_re_procdef where id = ?`, id)
	return scanProcDef(row, op, "id", id)
}

func (d *ReProcDefDAO) GetByDeploymentID(ctx context.Context, tx *sql.Tx, deploymentID string) (*model.ProcDef, error) {
	const op = "dao.ReProcDef.GetByDeploymentID"
	row := d.gw.queryRow(ctx, tx, `select id, process_key, version, deployment_id, suspension_state,
		is_deleted, company_id, deployer_id, update_user_id, update_time
		from apf_re_procdef where deployment_id = ?`, deploymentID)
	return scanProcDef(row, op, "deployment_id", deploymentID)
}

// GetLatestByKey returns the highest-version, non-deleted, non-suspended
// procdef for (key, companyID) — grounded on get_lastest_by_key, scoped
// additionally by company_id.
func (d *ReProcDefDAO) GetLatestByKey(ctx context.Context, tx *sql.Tx, key, companyID string) (*model.ProcDef, error) {
	const op = "dao.ReProcDef.GetLatestByKey"
	row := d.gw.queryRow(ctx, tx, `select id, process_key, version, deployment_id, suspension_state,
		is_deleted, company_id, deployer_id, update_user_id, update_time
		from apf_re_procdef
		where process_key = ? and company_id = ? and suspension_state = 0 and is_deleted = 0
		order by version desc limit 1`, key, companyID)
	return scanProcDef(row, op, "process_key", key)
}

// Create computes the next version for (key, company_id) and inserts,
// grounded on ApfReProcdefDao::create's select-max-then-insert shape.
func (d *ReProcDefDAO) Create(ctx context.Context, tx *sql.Tx, p *model.ProcDef) (*model.ProcDef, error) {
	const op = "dao.ReProcDef.Create"

	var maxVersion sql.NullInt64
	row := d.gw.queryRow(ctx, tx, `select max(version) from apf_re_procdef where process_key = ? and company_id = ?`,
		p.Key, p.CompanyID)
	if err := row.Scan(&maxVersion); err != nil && err != sql.ErrNoRows {
		return nil, apperr.Wrap(apperr.InternalError, op, "select max(version) failed", err)
	}
	version := 1
	if maxVersion.Valid {
		version = int(maxVersion.Int64) + 1
	}
	p.Version = version
	p.ID = uuid.NewString()

	_, err := d.gw.exec(ctx, tx, `insert into apf_re_procdef
		(id, process_key, version, deployment_id, suspension_state, is_deleted, company_id,
		 deployer_id, update_user_id, update_time)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Key, p.Version, p.DeploymentID, int(p.SuspensionState), boolToInt(p.IsDeleted),
		p.CompanyID, p.DeployerID, p.UpdateUserID, p.UpdateTime)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "insert apf_re_procdef failed", err)
	}
	return p, nil
}

// DeleteByID soft-deletes a procdef (spec §3: is_deleted=1, never a hard
// delete so history rows keep a resolvable proc_def_id), stamping the
// caller as update_user_id.
func (d *ReProcDefDAO) DeleteByID(ctx context.Context, tx *sql.Tx, id, userID string) error {
	const op = "dao.ReProcDef.DeleteByID"
	res, err := d.gw.exec(ctx, tx, `update apf_re_procdef set is_deleted = 1, update_user_id = ? where id = ?`, userID, id)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "soft-delete apf_re_procdef failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "rows affected check failed", err)
	}
	if n != 1 {
		return apperr.NotFoundf(op, "apf_re_procdef(%s) not found", id)
	}
	return nil
}

func scanProcDef(row *sql.Row, op, field, value string) (*model.ProcDef, error) {
	var p model.ProcDef
	var susp, deleted int
	if err := row.Scan(&p.ID, &p.Key, &p.Version, &p.DeploymentID, &susp, &deleted,
		&p.CompanyID, &p.DeployerID, &p.UpdateUserID, &p.UpdateTime); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFoundf(op, "apf_re_procdef(%s:%s) not found", field, value)
		}
		return nil, apperr.Wrap(apperr.InternalError, op, "select apf_re_procdef failed", err)
	}
	p.SuspensionState = model.SuspensionState(susp)
	p.IsDeleted = deleted != 0
	return &p, nil
}
