package models

import (
	"fmt"
	"strconv"
)

// LocationFix 一次定位结果（值类型，产生后不再修改）
type LocationFix struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  float64  `json:"accuracy"` // 米
	Altitude  *float64 `json:"altitude,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Timestamp int64    `json:"timestamp"` // 毫秒
}

// AccuracyBand 精度等级（仅用于展示）
type AccuracyBand string

const (
	AccuracyExcellent AccuracyBand = "excellent" // < 5m
	AccuracyVeryGood  AccuracyBand = "very_good" // < 10m
	AccuracyGood      AccuracyBand = "good"      // < 20m
	AccuracyFair      AccuracyBand = "fair"      // < 50m
	AccuracyPoor      AccuracyBand = "poor"      // >= 50m
	AccuracyUnknown   AccuracyBand = "unknown"
)

// ClassifyAccuracy 按米数划分精度等级
func ClassifyAccuracy(meters float64) AccuracyBand {
	switch {
	case meters < 0:
		return AccuracyUnknown
	case meters < 5:
		return AccuracyExcellent
	case meters < 10:
		return AccuracyVeryGood
	case meters < 20:
		return AccuracyGood
	case meters < 50:
		return AccuracyFair
	default:
		return AccuracyPoor
	}
}

// Band 当前定位的精度等级
func (f LocationFix) Band() AccuracyBand {
	return ClassifyAccuracy(f.Accuracy)
}

// FormatCoordinates 格式化坐标用于展示
func FormatCoordinates(lat, lon float64, precision int) string {
	return fmt.Sprintf("%.*f, %.*f", precision, lat, precision, lon)
}

// CoordinateString 坐标转十进制字符串（上链时使用，不截断精度）
func CoordinateString(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// MapLinks 各地图应用的位置链接
type MapLinks struct {
	Google    string `json:"google"`
	Waze      string `json:"waze"`
	Apple     string `json:"apple"`
	Universal string `json:"universal"`
}

// BuildMapLinks 生成地图链接，默认使用 Google Maps
func BuildMapLinks(lat, lon float64) MapLinks {
	la, lo := CoordinateString(lat), CoordinateString(lon)
	google := fmt.Sprintf("https://maps.google.com/?q=%s,%s", la, lo)
	return MapLinks{
		Google:    google,
		Waze:      fmt.Sprintf("https://waze.com/ul?ll=%s,%s", la, lo),
		Apple:     fmt.Sprintf("http://maps.apple.com/?q=%s,%s", la, lo),
		Universal: google,
	}
}
