package database

import (
	"fmt"
	"log/slog"

	"github.com/Kousuke-irie/campus-market-backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type seedCategory struct {
	Name        string
	Description string
	Keywords    []string
}

var seedCategories = []seedCategory{
	{
		Name:        "Sách & Tài liệu học tập",
		Description: "Chia sẻ, mua bán sách giáo trình, tài liệu tham khảo, và giáo cụ phục vụ học tập.",
		Keywords:    []string{"sách", "giáo trình", "tài liệu", "đề thi"},
	},
	{
		Name:        "Đồ dùng học tập/Văn phòng phẩm",
		Description: "Bút, vở, giấy, thước kẻ và các vật dụng hỗ trợ học tập hoặc làm việc văn phòng.",
		Keywords:    []string{"bút", "vở", "máy tính casio", "balo"},
	},
	{
		Name:        "Thiết bị Điện tử",
		Description: "Các thiết bị như laptop, điện thoại, tai nghe, phụ kiện điện tử phục vụ học tập và giải trí.",
		Keywords:    []string{"laptop", "điện thoại", "tai nghe", "sạc"},
	},
	{
		Name:        "Đồ Gia dụng & Thiết bị ký túc xá",
		Description: "Các vật dụng cần thiết cho sinh hoạt hằng ngày, phù hợp với phòng trọ và ký túc xá sinh viên.",
		Keywords:    []string{"quạt", "nồi cơm", "đèn học", "chăn"},
	},
	{
		Name:        "Quần áo & Phụ kiện",
		Description: "Quần áo, giày dép, balo, túi xách và các phụ kiện thời trang phù hợp với sinh viên.",
		Keywords:    []string{"áo", "giày", "túi xách"},
	},
	{
		Name:        "Dịch vụ & Khác",
		Description: "Các dịch vụ tiện ích, việc làm thêm, và các sản phẩm khác phục vụ nhu cầu sinh viên.",
		Keywords:    []string{"gia sư", "việc làm thêm"},
	},
}

// SeedData カテゴリとキーワードの初期データ。何度実行しても重複しない
func SeedData(db *gorm.DB) error {
	for _, sc := range seedCategories {
		category := models.Category{CategoryName: sc.Name, Description: sc.Description}
		if err := db.Where(models.Category{CategoryName: sc.Name}).FirstOrCreate(&category).Error; err != nil {
			return fmt.Errorf("failed to seed category %q: %w", sc.Name, err)
		}

		for _, kw := range sc.Keywords {
			keyword := models.CategoryKeyword{CategoryID: category.ID, Keyword: kw}
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&keyword).Error; err != nil {
				return fmt.Errorf("failed to seed keyword %q: %w", kw, err)
			}
		}
	}
	slog.Info("seed data ensured", slog.Int("categories", len(seedCategories)))
	return nil
}
