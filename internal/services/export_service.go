package services

import (
	"fmt"
	"io"

	"github.com/gitpulse/gitpulse/internal/models"
	"github.com/xuri/excelize/v2"
)

// ExportService renders an analytics report as an XLSX workbook with
// Summary, Repositories and Languages sheets.
type ExportService struct{}

func NewExportService() *ExportService {
	return &ExportService{}
}

// WriteReport writes the report workbook to w
func (s *ExportService) WriteReport(w io.Writer, report *models.AnalyticsReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := s.writeSummarySheet(f, report.Summary); err != nil {
		return err
	}
	if err := s.writeRepositoriesSheet(f, report.Repositories); err != nil {
		return err
	}
	if err := s.writeLanguagesSheet(f, report.Languages); err != nil {
		return err
	}

	return f.Write(w)
}

func (s *ExportService) writeSummarySheet(f *excelize.File, summary models.Summary) error {
	const sheet = "Summary"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	rows := []struct {
		label string
		value interface{}
	}{
		{"Total commits", summary.TotalCommits},
		{"Active repositories", summary.ActiveRepos},
		{"Unique authors", summary.UniqueAuthors},
		{"Weekly velocity", summary.Velocity},
		{"Review turnaround", summary.ReviewTurnaround},
		{"Long-lived branches", summary.LongLivedBranches},
		{"Repositories considered", summary.Repositories},
	}

	for i, row := range rows {
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", i+1), row.label); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", i+1), row.value); err != nil {
			return err
		}
	}

	return nil
}

func (s *ExportService) writeRepositoriesSheet(f *excelize.File, repositories []models.Repository) error {
	const sheet = "Repositories"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"Name", "Owner", "Stars", "Forks", "Open Issues", "Language", "Visibility", "Last Pushed"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}

	for i, repo := range repositories {
		values := []interface{}{repo.Name, repo.Owner, repo.Stars, repo.Forks, repo.OpenIssues, repo.Language, repo.Visibility, repo.LastPushed}
		for j, value := range values {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *ExportService) writeLanguagesSheet(f *excelize.File, languages []models.LanguageStat) error {
	const sheet = "Languages"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	if err := f.SetCellValue(sheet, "A1", "Language"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, "B1", "Percentage"); err != nil {
		return err
	}

	for i, language := range languages {
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", i+2), language.Name); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", i+2), language.Percentage); err != nil {
			return err
		}
	}

	return nil
}
