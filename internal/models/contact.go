package models

import "time"

// DefaultRelation 未填写关系时的默认值
const DefaultRelation = "Contacto de emergencia"

// Contact 紧急联系人（序列化后整体存入 K/V 键 "contacts"）
type Contact struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"` // 规范化后的号码，如 "+573123456789"
	Email     string     `json:"email,omitempty"`
	Relation  string     `json:"relation"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// ContactInput 新增/编辑联系人的表单数据
type ContactInput struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Relation string `json:"relation"`
}

// ContactStats 联系人统计
type ContactStats struct {
	Total        int  `json:"total"`
	Active       int  `json:"active"`
	Inactive     int  `json:"inactive"`
	HasContacts  bool `json:"hasContacts"`
	IsConfigured bool `json:"isConfigured"` // active > 0 时才允许触发紧急流程
}
