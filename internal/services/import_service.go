package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/brightclass/quiz-service/internal/models"
	"github.com/brightclass/quiz-service/internal/repositories"
	"github.com/brightclass/quiz-service/internal/validator"
)

// ImportResult summarizes one staff file upload: how many rows parsed
// into questions and the per-row errors for the rest.
type ImportResult struct {
	TotalRows     int                            `json:"total_rows"`
	ProcessedRows int                            `json:"processed_rows"`
	SuccessCount  int                            `json:"success_count"`
	ErrorCount    int                            `json:"error_count"`
	Errors        []models.ImportValidationError `json:"errors,omitempty"`
	Status        models.ImportStatus            `json:"status"`
}

type importService struct {
	repo      repositories.Repository
	quiz      QuizService
	logger    *slog.Logger
	validator *validator.Validator
}

func NewImportService(repo repositories.Repository, quiz QuizService, logger *slog.Logger, v *validator.Validator) ImportService {
	return &importService{
		repo:      repo,
		quiz:      quiz,
		logger:    logger,
		validator: v,
	}
}

var importColumns = []string{"question_type", "question_text", "correct_answer"}

func (s *importService) ImportQuestionsFromFile(ctx context.Context, quizID uint, file multipart.File, filename string, userID string) (*ImportResult, error) {
	s.logger.Info("Starting question import",
		"quiz_id", quizID,
		"filename", filename,
		"user_id", userID)

	var rows [][]string
	var err error

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		rows, err = readCSVRows(file)
	case ".xlsx", ".xls":
		rows, err = readExcelRows(file)
	default:
		return nil, NewValidationError("file", "unsupported file format", ext)
	}
	if err != nil {
		return nil, err
	}

	if len(rows) < 2 {
		return nil, NewValidationError("file", "file must have a header row and at least one data row", len(rows))
	}

	headerMap := make(map[string]int)
	for i, header := range rows[0] {
		headerMap[strings.ToLower(strings.TrimSpace(header))] = i
	}
	for _, col := range importColumns {
		if _, exists := headerMap[col]; !exists {
			return nil, NewValidationError("headers", fmt.Sprintf("missing required column: %s", col), col)
		}
	}

	result := &ImportResult{
		TotalRows: len(rows) - 1,
		Status:    models.ImportProcessing,
	}

	var requests []CreateQuestionRequest
	for rowIndex, record := range rows[1:] {
		req, rowErrors := parseQuestionRow(record, headerMap, rowIndex+2)
		if len(rowErrors) > 0 {
			result.Errors = append(result.Errors, rowErrors...)
			result.ErrorCount++
		} else if req != nil {
			requests = append(requests, *req)
			result.SuccessCount++
		}
		result.ProcessedRows++
	}

	if len(requests) > 0 {
		// AddQuestions enforces quiz ownership and per-question rules.
		if _, err := s.quiz.AddQuestions(ctx, quizID, requests, userID); err != nil {
			result.Status = models.ImportFailed
			return result, err
		}
	}

	result.Status = models.ImportCompleted

	s.logger.Info("Question import completed",
		"quiz_id", quizID,
		"total_rows", result.TotalRows,
		"success_count", result.SuccessCount,
		"error_count", result.ErrorCount)

	return result, nil
}

// ===== HELPER FUNCTIONS =====

func readCSVRows(reader io.Reader) ([][]string, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	rows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return rows, nil
}

func readExcelRows(reader io.Reader) ([][]string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, NewValidationError("file", "Excel file has no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel rows: %w", err)
	}
	return rows, nil
}

func parseQuestionRow(record []string, headerMap map[string]int, rowNum int) (*CreateQuestionRequest, []models.ImportValidationError) {
	var errors []models.ImportValidationError

	getColumn := func(name string) string {
		if index, exists := headerMap[name]; exists && index < len(record) {
			return strings.TrimSpace(record[index])
		}
		return ""
	}

	questionTypeStr := strings.ToLower(getColumn("question_type"))
	if questionTypeStr == "" {
		errors = append(errors, models.ImportValidationError{
			Row: rowNum, Column: "question_type", Message: "required field", Value: questionTypeStr,
		})
		return nil, errors
	}
	questionType := models.QuestionType(questionTypeStr)

	questionText := getColumn("question_text")
	if questionText == "" {
		errors = append(errors, models.ImportValidationError{
			Row: rowNum, Column: "question_text", Message: "required field", Value: questionText,
		})
		return nil, errors
	}

	points := 10
	if pointsStr := getColumn("points"); pointsStr != "" {
		if p, err := strconv.Atoi(pointsStr); err == nil && p > 0 {
			points = p
		}
	}

	req := &CreateQuestionRequest{
		Text:   questionText,
		Type:   questionType,
		Points: points,
	}

	switch questionType {
	case models.MultipleChoice:
		options, optionErrors := parseOptionColumns(record, headerMap, rowNum)
		if len(optionErrors) > 0 {
			return nil, optionErrors
		}
		req.Options = options

	case models.TrueFalse:
		answer := strings.ToLower(getColumn("correct_answer"))
		if answer != "true" && answer != "false" {
			errors = append(errors, models.ImportValidationError{
				Row: rowNum, Column: "correct_answer", Message: "must be 'true' or 'false'", Value: answer,
			})
			return nil, errors
		}
		req.CorrectAnswer = &answer

	case models.ShortAnswer:
		answer := getColumn("correct_answer")
		if answer == "" {
			errors = append(errors, models.ImportValidationError{
				Row: rowNum, Column: "correct_answer", Message: "required field", Value: answer,
			})
			return nil, errors
		}
		req.CorrectAnswer = &answer

	default:
		errors = append(errors, models.ImportValidationError{
			Row: rowNum, Column: "question_type", Message: "unsupported question type", Value: questionTypeStr,
		})
		return nil, errors
	}

	return req, nil
}

func parseOptionColumns(record []string, headerMap map[string]int, rowNum int) ([]CreateOptionRequest, []models.ImportValidationError) {
	var errors []models.ImportValidationError

	getColumn := func(name string) string {
		if index, exists := headerMap[name]; exists && index < len(record) {
			return strings.TrimSpace(record[index])
		}
		return ""
	}

	var options []CreateOptionRequest
	optionColumns := []string{"option_a", "option_b", "option_c", "option_d"}
	for i, colName := range optionColumns {
		if text := getColumn(colName); text != "" {
			options = append(options, CreateOptionRequest{Text: text, Order: i + 1})
		}
	}

	if len(options) < 2 {
		errors = append(errors, models.ImportValidationError{
			Row: rowNum, Column: "options", Message: "must have at least 2 options", Value: "",
		})
		return nil, errors
	}

	// Correct answers are letters referencing the option columns,
	// e.g. "A" or "A,C" for a multi-select question.
	correctStr := strings.ToUpper(getColumn("correct_answer"))
	marked := 0
	for _, part := range strings.Split(correctStr, ",") {
		part = strings.TrimSpace(part)
		if len(part) != 1 || part < "A" || part > "D" {
			continue
		}
		index := int(part[0] - 'A')
		if index < len(options) {
			options[index].IsCorrect = true
			marked++
		}
	}

	if marked == 0 {
		errors = append(errors, models.ImportValidationError{
			Row: rowNum, Column: "correct_answer", Message: "must mark at least one correct option (A, B, C, or D)", Value: correctStr,
		})
		return nil, errors
	}

	return options, nil
}
