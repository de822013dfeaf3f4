package ai

import (
	"fmt"
	"strings"
)

func analysisPrompt(section, content, jobDescription string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze the following %s section of a resume:\n", section)
	fmt.Fprintf(&sb, "Content: %s\n", content)
	if jobDescription != "" {
		fmt.Fprintf(&sb, "Job Description:\n%s\n", jobDescription)
	}
	sb.WriteString(`Provide analysis in the following JSON format:
{
  "analysis": {
    "score": number (0-100),
    "feedback": string[],
    "suggestions": string[]
  },
  "atsCompatibility": {
    "overall": number (0-100),
    "format": number (0-100),
    "content": number (0-100),
    "keywords": number (0-100),
    "improvements": string[]
  }
}`)
	return sb.String()
}

func improvementPrompt(section, content, jobDescription string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Improve the following %s section of a resume to maximize ATS compatibility:\n", section)
	fmt.Fprintf(&sb, "Original Content: %s\n", content)
	if jobDescription != "" {
		fmt.Fprintf(&sb, "Job Description: %s\n", jobDescription)
	}
	sb.WriteString(`Focus on:
1. Using strong action verbs
2. Adding quantifiable achievements
3. Improving clarity and impact
4. Optimizing for ATS systems
5. Professional tone and formatting
6. Industry-standard terminology
Provide the response in the following JSON format:
{
  "analysis": {
    "score": number (0-100),
    "feedback": string[],
    "suggestions": string[] (the first element is the full improved content)
  },
  "atsCompatibility": {
    "overall": number (0-100),
    "format": number (0-100),
    "content": number (0-100),
    "keywords": number (0-100),
    "improvements": string[]
  }
}`)
	return sb.String()
}

func jobParsePrompt(content, targetRole string) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following job description and extract structured information:\n\n")
	sb.WriteString(content)
	sb.WriteString("\n\n")
	if targetRole != "" {
		fmt.Fprintf(&sb, "Target Role Context: %s\n\n", targetRole)
	}
	sb.WriteString(`Provide the analysis in the following JSON format:
{
  "requiredSkills": string[],
  "preferredSkills": string[],
  "experience": {
    "years": number,
    "level": string
  },
  "education": string[],
  "responsibilities": string[],
  "technicalRequirements": {
    "tools": string[],
    "platforms": string[],
    "methodologies": string[]
  },
  "softSkills": string[],
  "benefits": string[],
  "metadata": {
    "seniorityLevel": string,
    "employmentType": string,
    "workplaceType": string,
    "locations": string[]
  }
}`)
	return sb.String()
}

func atsScorePrompt(resume, jobDescription string) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following resume for ATS compatibility:\n")
	sb.WriteString(resume)
	sb.WriteString("\n")
	if jobDescription != "" {
		fmt.Fprintf(&sb, "Target Job Description:\n%s\n", jobDescription)
	}
	sb.WriteString(`
Provide a scoring analysis in the following JSON format:
{
  "overall": number (0-100),
  "format": number (0-100),
  "content": number (0-100),
  "keywords": number (0-100)
}

Consider:
1. Proper formatting and structure
2. Keyword optimization
3. Content relevance
4. Quantifiable achievements`)
	return sb.String()
}

func suggestionsPrompt(resume, jobDescription string) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following resume and provide improvement suggestions:\n")
	sb.WriteString(resume)
	sb.WriteString("\n")
	if jobDescription != "" {
		fmt.Fprintf(&sb, "Target Job Description:\n%s\n", jobDescription)
	}
	sb.WriteString(`
Provide analysis in the following JSON format:
{
  "strengths": string[],
  "weaknesses": string[],
  "improvements": string[]
}

Focus on:
1. Content strength and impact
2. Skills alignment
3. Achievement highlighting
4. Professional presentation`)
	return sb.String()
}

func tailorPrompt(resume, jobAnalysis string) string {
	var sb strings.Builder
	sb.WriteString("You are a professional resume optimizer. Enhance the resume content to match the job requirements while maintaining factual accuracy.\n")
	fmt.Fprintf(&sb, "Resume:\n%s\n", resume)
	fmt.Fprintf(&sb, "Job Analysis:\n%s\n", jobAnalysis)
	sb.WriteString(`
Provide the response in the following JSON format:
{
  "enhancedContent": string,
  "matchScore": number (0-100),
  "suggestions": string[],
  "matchedKeywords": string[]
}`)
	return sb.String()
}
