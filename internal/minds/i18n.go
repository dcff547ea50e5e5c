package minds

import "fmt"

// The driver emits a handful of human-actionable messages in the agent's
// last observed UI language. Full message formatting lives outside the
// driver; this table covers only what the driver itself says.

type msgKey string

const (
	MsgMissingProvider     msgKey = "missing_provider"
	MsgUnknownModel        msgKey = "unknown_model"
	MsgMissingGenerator    msgKey = "missing_generator"
	MsgNoToolsNotice       msgKey = "fbr_no_tools_notice"
	MsgFBRViolation        msgKey = "fbr_violation"
	MsgMalformedTellask    msgKey = "malformed_tellask"
	MsgUnknownTeammate     msgKey = "unknown_teammate"
	MsgSelfTellaskByRealID msgKey = "self_tellask_by_real_id"
	MsgFBRDisabled         msgKey = "fbr_disabled"
	MsgTellaskerOutsideSub msgKey = "tellasker_outside_sub"
	MsgBudgetExhausted     msgKey = "diligence_budget_exhausted"
)

var msgTable = map[string]map[msgKey]string{
	"en": {
		MsgMissingProvider:     "No LLM provider is configured for member %q. Set provider/model on the member or in member_defaults of .minds/team.yaml.",
		MsgUnknownModel:        "Model %q is not declared under provider %q in .minds/llm.yaml.",
		MsgMissingGenerator:    "No generator is available for provider %q (apiType %q). Check .minds/llm.yaml.",
		MsgNoToolsNotice:       "Fresh-boots reasoning: tools are not available in this dialog. Reply to @tellasker with your conclusions.",
		MsgFBRViolation:        "This fresh-boots dialog may only address @tellasker and may not call tools. The drive was stopped; nothing was executed.",
		MsgMalformedTellask:    "A tellask call could not be executed: %s",
		MsgUnknownTeammate:     "%q does not name a member of this team.",
		MsgSelfTellaskByRealID: "You addressed yourself by your own member id. If you meant fresh-boots reasoning, use @self.",
		MsgFBRDisabled:         "fbr_effort is 0 for this member; fresh-boots reasoning is disabled.",
		MsgTellaskerOutsideSub: "@tellasker is only valid inside a subdialog.",
		MsgBudgetExhausted:     "The diligence budget is exhausted. How should the work continue?",
	},
	"zh": {
		MsgMissingProvider:     "成员 %q 未配置 LLM 提供方。请在 .minds/team.yaml 的成员或 member_defaults 中设置 provider/model。",
		MsgUnknownModel:        "模型 %q 未在 .minds/llm.yaml 的提供方 %q 下声明。",
		MsgMissingGenerator:    "提供方 %q（apiType %q）没有可用的生成器。请检查 .minds/llm.yaml。",
		MsgNoToolsNotice:       "重新启动推理：本对话不可使用工具。请将结论回复给 @tellasker。",
		MsgFBRViolation:        "本重新启动对话只能联系 @tellasker，且不可调用工具。本次驱动已停止，未执行任何调用。",
		MsgMalformedTellask:    "一个 tellask 调用无法执行：%s",
		MsgUnknownTeammate:     "%q 不是本团队的成员。",
		MsgSelfTellaskByRealID: "你用自己的成员 id 联系了自己。如果是想做重新启动推理，请使用 @self。",
		MsgFBRDisabled:         "该成员的 fbr_effort 为 0，重新启动推理已禁用。",
		MsgTellaskerOutsideSub: "@tellasker 只能在子对话中使用。",
		MsgBudgetExhausted:     "勤勉预算已用尽。接下来的工作应如何继续？",
	},
}

// Msg formats a driver message in the given UI language, falling back to
// English for unknown languages.
func Msg(lang string, key msgKey, args ...any) string {
	table, ok := msgTable[lang]
	if !ok {
		table = msgTable["en"]
	}
	format, ok := table[key]
	if !ok {
		format = msgTable["en"][key]
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
