package guard

import (
	"strings"

	"github.com/flemzord/warden/internal/platform"
)

type right struct {
	label string
	get   func(platform.AdminRights) bool
}

var reportRights = []right{
	{"管理聊天", func(r platform.AdminRights) bool { return r.CanManageChat }},
	{"删除消息", func(r platform.AdminRights) bool { return r.CanDeleteMessages }},
	{"踢人权限", func(r platform.AdminRights) bool { return r.CanRestrictMembers }},
	{"邀请用户", func(r platform.AdminRights) bool { return r.CanInviteUsers }},
	{"固定消息", func(r platform.AdminRights) bool { return r.CanPinMessages }},
	{"提升管理员", func(r platform.AdminRights) bool { return r.CanPromoteMembers }},
	{"更改群信息", func(r platform.AdminRights) bool { return r.CanChangeInfo }},
	{"管理视频聊天", func(r platform.AdminRights) bool { return r.CanManageVideoChats }},
	{"管理话题", func(r platform.AdminRights) bool { return r.CanManageTopics }},
	{"发布快拍", func(r platform.AdminRights) bool { return r.CanPostStories }},
	{"编辑快拍", func(r platform.AdminRights) bool { return r.CanEditStories }},
	{"删除快拍", func(r platform.AdminRights) bool { return r.CanDeleteStories }},
	{"可被编辑", func(r platform.AdminRights) bool { return r.CanBeEdited }},
	{"匿名管理员", func(r platform.AdminRights) bool { return r.IsAnonymous }},
}

// PermissionReport renders the bot's administrator rights as a Markdown
// checklist, one line per right.
func PermissionReport(rights platform.AdminRights) string {
	var b strings.Builder
	b.WriteString("🤖 *权限检查报告*\n\n")
	for _, r := range reportRights {
		if r.get(rights) {
			b.WriteString("✅ ")
		} else {
			b.WriteString("❌ ")
		}
		b.WriteString(r.label)
		b.WriteByte('\n')
	}
	return b.String()
}

// GrantedCount returns how many reported rights are held.
func GrantedCount(rights platform.AdminRights) int {
	n := 0
	for _, r := range reportRights {
		if r.get(rights) {
			n++
		}
	}
	return n
}
