package contacts

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"wisefido-sos/internal/errs"
	"wisefido-sos/internal/models"
)

var (
	separatorPattern = regexp.MustCompile(`[\s\-\(\)]`)
	phonePattern     = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	digitsPattern    = regexp.MustCompile(`^[0-9]+$`)
	emailPattern     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// StripSeparators 去掉空白、括号和连字符
func StripSeparators(phone string) string {
	return separatorPattern.ReplaceAllString(phone, "")
}

// ValidPhone 判断电话格式（去掉分隔符后：可选 +，7-15 位数字）
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(StripSeparators(phone))
}

// ValidEmail 判断邮箱格式
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Normalize 规范化电话号码
// 无 + 前缀且纯数字长度为 7 或 10 时补默认国家码；其它情况只去分隔符。
// 结果以 + 开头或长度不再是 7/10，所以重复调用结果不变。
func Normalize(phone, countryCode string) string {
	cleaned := StripSeparators(phone)
	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	if digitsPattern.MatchString(cleaned) && (len(cleaned) == 7 || len(cleaned) == 10) {
		return countryCode + cleaned
	}
	return cleaned
}

// Validator 联系人字段校验
type Validator struct {
	NameMin int
	NameMax int
}

// Validate 校验输入，返回包含全部失败字段的 ValidationError；通过时返回 nil
func (v Validator) Validate(in models.ContactInput) error {
	var fields []errs.FieldError

	name := strings.TrimSpace(in.Name)
	n := utf8.RuneCountInString(name)
	switch {
	case name == "":
		fields = append(fields, errs.FieldError{Field: "name", Message: "name is required"})
	case n < v.NameMin || n > v.NameMax:
		fields = append(fields, errs.FieldError{
			Field:   "name",
			Message: fmt.Sprintf("name must be between %d and %d characters", v.NameMin, v.NameMax),
		})
	}

	phone := strings.TrimSpace(in.Phone)
	switch {
	case phone == "":
		fields = append(fields, errs.FieldError{Field: "phone", Message: "phone is required"})
	case !ValidPhone(phone):
		fields = append(fields, errs.FieldError{Field: "phone", Message: "invalid phone number"})
	}

	if email := strings.TrimSpace(in.Email); email != "" && !ValidEmail(email) {
		fields = append(fields, errs.FieldError{Field: "email", Message: "invalid email address"})
	}

	if len(fields) > 0 {
		return errs.Validation(fields)
	}
	return nil
}
