package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mautops/netops-gin/internal/model"
)

// dryRunDB 只生成 SQL 不执行,用于校验查询的构造
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=netops dbname=netops"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func TestPendingListingOrdersByPriority(t *testing.T) {
	var tasks []*model.TaskModel
	stmt := pendingQuery(dryRunDB(t)).Limit(50).Find(&tasks).Statement

	// 待审核列表与认领顺序一致:高优先级在前,同优先级先到先执行
	sql := stmt.SQL.String()
	assert.Contains(t, sql, "ORDER BY priority DESC, created_at ASC")
	assert.Contains(t, stmt.Vars, model.StatusPendingApproval)
}
