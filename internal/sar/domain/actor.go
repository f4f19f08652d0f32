package domain

// Role 操作者角色
type Role string

const (
	RoleAnalyst    Role = "analyst"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

// Actor 当前操作者身份，由接口层从认证信息构造
type Actor struct {
	ID   string
	Name string
	Role Role
}

// CanReview 是否具有审核权限
func (a Actor) CanReview() bool {
	return a.Role == RoleSupervisor || a.Role == RoleAdmin
}

// CanAdminister 是否具有管理权限
func (a Actor) CanAdminister() bool {
	return a.Role == RoleAdmin
}

// CanEdit 是否可以编辑指定创建者的草稿
func (a Actor) CanEdit(createdBy string) bool {
	return a.ID == createdBy || a.CanReview()
}

// CanSee 是否可以查看指定创建者的案件：分析师只能看到自己创建的
func (a Actor) CanSee(createdBy string) bool {
	return a.ID == createdBy || a.CanReview()
}
