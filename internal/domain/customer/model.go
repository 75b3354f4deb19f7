package customer

import (
	"time"

	"gorm.io/datatypes"
)

// Record 客户档案，催收话术和问候语都从这里取数
type Record struct {
	ID               uint           `gorm:"primaryKey"                             json:"-"`
	CustomerID       string         `gorm:"type:varchar(64);uniqueIndex;not null"  json:"id"`
	Name             string         `gorm:"not null"                               json:"name"`
	Phone            string         `gorm:"type:varchar(32)"                       json:"phone"`
	Balance          int            `gorm:"not null"                               json:"balance"`     // 逾期本金，单位元
	DaysOverdue      int            `                                              json:"daysOverdue"` // 逾期天数
	PreviousContacts int            `                                              json:"previousContacts"`
	LastPayment      string         `                                              json:"lastPayment"` // 最近一次还款日期
	RiskLevel        string         `gorm:"default:'medium'"                       json:"riskLevel"`   // low/medium/high
	Scenario         string         `                                              json:"scenario"`    // 沟通场景标签
	Language         string         `gorm:"default:'zh-CN'"                        json:"preferredLanguage"`
	Extra            datatypes.JSON `                                              json:"extra,omitempty"`
	CreatedAt        time.Time      `                                              json:"-"`
	UpdatedAt        time.Time      `                                              json:"-"`
}

// TableName 固定表名
func (Record) TableName() string {
	return "customers"
}

// seedRecords 演示用的客户档案
var seedRecords = []Record{
	{
		CustomerID:       "DEMO_001",
		Name:             "张伟",
		Phone:            "+86-138-0013-8000",
		Balance:          15000,
		DaysOverdue:      67,
		PreviousContacts: 3,
		LastPayment:      "2024-06-15",
		RiskLevel:        "medium",
		Scenario:         "overdue_payment",
		Language:         "zh-CN",
	},
	{
		CustomerID:       "DEMO_002",
		Name:             "李娜",
		Phone:            "+86-139-0013-9000",
		Balance:          8500,
		DaysOverdue:      32,
		PreviousContacts: 1,
		LastPayment:      "2024-07-20",
		RiskLevel:        "low",
		Scenario:         "payment_plan",
		Language:         "zh-CN",
	},
	{
		CustomerID:       "DEMO_003",
		Name:             "王强",
		Phone:            "+86-137-0013-7000",
		Balance:          25000,
		DaysOverdue:      103,
		PreviousContacts: 7,
		LastPayment:      "2024-05-10",
		RiskLevel:        "high",
		Scenario:         "difficult_customer",
		Language:         "zh-CN",
	},
	{
		CustomerID:       "DEMO_004",
		Name:             "刘敏",
		Phone:            "+86-136-0013-6000",
		Balance:          4200,
		DaysOverdue:      24,
		PreviousContacts: 0,
		LastPayment:      "2024-07-28",
		RiskLevel:        "low",
		Scenario:         "first_contact",
		Language:         "zh-CN",
	},
}
