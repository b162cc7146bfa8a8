package command

import "fmt"

// Outcome enumerates every result a command can produce. Each maps to one
// fixed user-visible string; the command subsystem never emits free-form
// error text into the chat.
type Outcome int

const (
	OutcomeHelp Outcome = iota
	OutcomeBindRequested
	OutcomeBindResponded
	OutcomeBindConfirmed
	OutcomeUnbound

	OutcomeInvalidToken
	OutcomeNotFoundToken
	OutcomeNoApply
	OutcomeNotFoundBridgeUser
	OutcomeNoResponed
	OutcomeSelfReference
	OutcomeAlreadyMapping
	OutcomeUpdateBridgeUserFailure
)

var feedbackTexts = map[Outcome]string{
	OutcomeBindRequested:           "申请成功。请切换客户端，使用验证码回应请求: %s",
	OutcomeBindResponded:           "OK，请回到原客户端进行确认。",
	OutcomeBindConfirmed:           "完成关联。",
	OutcomeUnbound:                 "已取消关联。",
	OutcomeInvalidToken:            "口令格式错误！",
	OutcomeNotFoundToken:           "无效的口令！",
	OutcomeNoApply:                 "您未申请绑定，或申请已被重置。",
	OutcomeNotFoundBridgeUser:      "关联用户不存在！",
	OutcomeNoResponed:              "您的关联申请暂未收获回应！",
	OutcomeSelfReference:           "不要做自引用操作",
	OutcomeAlreadyMapping:          "您与该账户已经存在关联。如有疑问请联系管理员。",
	OutcomeUpdateBridgeUserFailure: "保存失败！",
}

// Feedback renders the fixed user-visible text for an outcome. arg fills
// the token slot of OutcomeBindRequested and the topic of OutcomeHelp.
func (o Outcome) Feedback(arg string) string {
	if o == OutcomeHelp {
		return helpText(arg)
	}
	text, ok := feedbackTexts[o]
	if !ok {
		return "未知的指令结果"
	}
	if o == OutcomeBindRequested {
		return fmt.Sprintf(text, arg)
	}
	return text
}

// helpText returns the usage text for one command topic, or the overview.
func helpText(topic string) string {
	switch topic {
	case "bind", "绑定":
		return "申请关联，获取验证码；或者用验证码回应申请\n" +
			"用法：!bind [口令]\n" +
			"口令\t选填。无口令时申请；有口令时回应申请\n" +
			"【申请关联】!bind\n" +
			"【回应申请】!bind 1a2b3c"
	case "confirm-bind", "确认绑定":
		return "确定保存关联。无参\n用法: !confirm-bind"
	case "unbind", "解除绑定":
		return "【解除桥用户关联】解除指定平台的关联\n" +
			"用法：!unbind <平台>\n" +
			"平台\t必填，单选。选项：QQ、DC=Discord、TG=Telegram\n" +
			"【用例】!unbind DC"
	default:
		return "桥的可用指令：\n" +
			"【申请/回应关联桥用户】!bind [口令]\n" +
			"【确认关联】!confirm-bind\n" +
			"【解除桥用户关联】!unbind <平台>\n" +
			"【指令帮助】!help [指令]"
	}
}
