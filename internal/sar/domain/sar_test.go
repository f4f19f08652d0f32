package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	analyst    = Actor{ID: "user-1", Name: "Alice", Role: RoleAnalyst}
	otherUser  = Actor{ID: "user-2", Name: "Bob", Role: RoleAnalyst}
	supervisor = Actor{ID: "sup-1", Name: "Carol", Role: RoleSupervisor}
	admin      = Actor{ID: "adm-1", Name: "Dave", Role: RoleAdmin}
)

func draftRecord() *SARRecord {
	return &SARRecord{
		CaseID:    "SAR-TEST1",
		CreatedBy: analyst.ID,
		Status:    StatusDraft,
		Narrative: "initial narrative",
	}
}

func TestEditNarrative(t *testing.T) {
	t.Run("owner edits draft", func(t *testing.T) {
		r := draftRecord()
		require.NoError(t, r.EditNarrative(analyst, "updated text"))
		assert.Equal(t, "updated text", r.Narrative)
		assert.Len(t, r.GetDomainEvents(), 1)
	})

	t.Run("non-owner analyst denied", func(t *testing.T) {
		r := draftRecord()
		err := r.EditNarrative(otherUser, "sneaky edit")
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("supervisor may edit", func(t *testing.T) {
		r := draftRecord()
		assert.NoError(t, r.EditNarrative(supervisor, "reviewer edit"))
	})

	t.Run("rejected outside draft", func(t *testing.T) {
		r := draftRecord()
		r.Status = StatusPendingReview
		err := r.EditNarrative(analyst, "too late")
		assert.ErrorIs(t, err, ErrStateConflict)
	})

	t.Run("empty narrative rejected", func(t *testing.T) {
		r := draftRecord()
		err := r.EditNarrative(analyst, "")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestSubmit(t *testing.T) {
	r := draftRecord()
	require.NoError(t, r.Submit(analyst))
	assert.Equal(t, StatusPendingReview, r.Status)

	// 二次提交冲突
	assert.ErrorIs(t, r.Submit(analyst), ErrStateConflict)
}

func TestApprove(t *testing.T) {
	t.Run("from pending review", func(t *testing.T) {
		r := draftRecord()
		require.NoError(t, r.Submit(analyst))
		require.NoError(t, r.Approve(supervisor, "looks good"))
		assert.Equal(t, StatusApproved, r.Status)
		assert.Equal(t, supervisor.ID, r.ApprovedBy)
		assert.NotNil(t, r.ApprovedAt)
		assert.Len(t, r.ReviewComments, 1)
	})

	t.Run("directly from draft", func(t *testing.T) {
		r := draftRecord()
		require.NoError(t, r.Approve(supervisor, ""))
		assert.Equal(t, StatusApproved, r.Status)
		assert.Empty(t, r.ReviewComments)
	})

	t.Run("analyst cannot approve", func(t *testing.T) {
		r := draftRecord()
		assert.ErrorIs(t, r.Approve(analyst, ""), ErrPermissionDenied)
	})

	t.Run("filed case conflicts", func(t *testing.T) {
		r := draftRecord()
		r.Status = StatusFiled
		// 权限先于状态检查：主管操作已申报案件得到状态冲突
		assert.ErrorIs(t, r.Approve(supervisor, ""), ErrStateConflict)
	})
}

func TestReject(t *testing.T) {
	t.Run("requires comment", func(t *testing.T) {
		r := draftRecord()
		require.NoError(t, r.Submit(analyst))
		assert.ErrorIs(t, r.Reject(supervisor, ""), ErrValidation)
		assert.Equal(t, StatusPendingReview, r.Status)
	})

	t.Run("with comment", func(t *testing.T) {
		r := draftRecord()
		require.NoError(t, r.Submit(analyst))
		require.NoError(t, r.Reject(supervisor, "insufficient evidence"))
		assert.Equal(t, StatusRejected, r.Status)
		require.Len(t, r.ReviewComments, 1)
		assert.Equal(t, "insufficient evidence", r.ReviewComments[0].Comment)
	})

	t.Run("analyst cannot reject", func(t *testing.T) {
		r := draftRecord()
		assert.ErrorIs(t, r.Reject(analyst, "nope"), ErrPermissionDenied)
	})
}

func TestFile(t *testing.T) {
	r := draftRecord()
	require.NoError(t, r.Approve(supervisor, ""))
	require.NoError(t, r.File(admin))
	assert.Equal(t, StatusFiled, r.Status)
	assert.NotNil(t, r.FiledAt)

	t.Run("only approved cases", func(t *testing.T) {
		r := draftRecord()
		assert.ErrorIs(t, r.File(supervisor), ErrStateConflict)
	})

	t.Run("analyst cannot file", func(t *testing.T) {
		r := draftRecord()
		r.Status = StatusApproved
		assert.ErrorIs(t, r.File(analyst), ErrPermissionDenied)
	})
}

func TestReopen(t *testing.T) {
	r := draftRecord()
	require.NoError(t, r.Submit(analyst))
	require.NoError(t, r.Reject(supervisor, "missing timeline"))
	require.NoError(t, r.Reopen(analyst))
	assert.Equal(t, StatusDraft, r.Status)

	// 重开后可重新编辑与提交
	require.NoError(t, r.EditNarrative(analyst, "revised narrative"))
	require.NoError(t, r.Submit(analyst))

	t.Run("only rejected cases", func(t *testing.T) {
		r := draftRecord()
		assert.ErrorIs(t, r.Reopen(analyst), ErrStateConflict)
	})
}

func TestDomainEventsAccumulate(t *testing.T) {
	r := draftRecord()
	require.NoError(t, r.Submit(analyst))
	require.NoError(t, r.Approve(supervisor, ""))

	events := r.GetDomainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "sar.case.status_changed", events[0].EventName())
	assert.Equal(t, r.CaseID, events[0].Key())

	r.ClearDomainEvents()
	assert.Empty(t, r.GetDomainEvents())
}

func TestActorPermissions(t *testing.T) {
	assert.False(t, analyst.CanReview())
	assert.True(t, supervisor.CanReview())
	assert.True(t, admin.CanReview())

	assert.False(t, supervisor.CanAdminister())
	assert.True(t, admin.CanAdminister())

	assert.True(t, analyst.CanEdit(analyst.ID))
	assert.False(t, analyst.CanEdit(otherUser.ID))
	assert.True(t, supervisor.CanSee(analyst.ID))
	assert.False(t, otherUser.CanSee(analyst.ID))
}
