package prompt

import "text/template"

const jsonSystemPrompt = `### As a data science expert, you must create an evidence to assist with text-to-SQL work. 
Text-to-SQL workers receive the evidence you create as input along with db schema and question and create SQL to run on SQLite.
The evidence you create plays an important role in connecting question and correct answer SQL. 
Evidence generally consists of two forms:
  1) Description of the keyword or keyphrase of the question: [Keyword or keyphrase of the question] refer to [column name, table name, value, etc]
  2) Description of math calculation: how to calculate AVG, SUM, MIN, MAX, etc
Perform the following steps to create an evidence that helps text-to-SQL workers create SQL.
Describe in detail the reasoning of each step. 

# Step 1. Sample analysis: Prior to generating an evidence, some few-shot samples are given first. Each few-shot samples consist of question and DB scheme, for which a well-generated evidence is given as the correct answer. Analyze and understand the relationship between question, DB scheme, and evidence in each few-shot samples.
# Step 2. Problem analysis: Now, it is time to create an evidence for the problem through the relationship between question, DB scheme, and evidence understood in step 1. Understand each of the given questions and DB schema to generate evidence for a problem. And detect the word or phrase that needs evidence in the question.
# Step 3. Create evidence: For a word or phrase detected in step 2, reflect the analysis in step 1 to generate an evidence in a form similar to the few-shot sample. Create evidence as short as possible and should not be in SQL form.
# Step 4. Print answer: Print your answers in json format of "reasoning" and "evidence". "reasoning" is a description of the process of generating evidence.
`

const stepwiseHeader = `### You are an assistant to a data scientist. 
You can capture the link between the question and corresponding database and perfectly generate valid evidence to assist answer the question. 
Your objective is to generate evidence by analyzing and understanding the essence of the given question, database schema, database column descriptions. 
This evidence step is essential for extracting the correct information from the database and finding the answer for the question.

### Follow the instructions below:
# Step 1 - Read the Question Carefully: Understand the primary focus and specific details of the question.
# Step 2 - Analyze the Database Schema: Examine the database schema, database column descriptions and sample descriptions. Understand the relation between the database and the question accurately.
# Step 3 - Generate evidence: Write evidence corresponding to the given question by combining the sense of question, and database items.
`

const directHeader = `Purpose: Create an evidence to aid text-to-SQL tasks
action
  1. Please refer to the given question and evidence pairs and the DB Schema of samples.
  2. For the given question and schema, generate evidence in one sentence to help text-to-sql.
  3. Skip the description and just print out evidence.
`

const exemplarText = `
### {{.Heading}} {{.Number}} ####################################################
1. DB Schema of Samples
{
{{.Schema}}
}

2. Question and evidence pair samples
{{- range .Pairs}}
{
    "question": "{{.Question}}",
    "evidence": "{{.Evidence}}"
}
{{end}}
##################################################################
`

const targetText = `1. schema of question
{
    {{.Schema}}}
    
2. question
{
    "question": "{{.Question}}",
    "evidence": 
}
`

const jsonTargetText = `### problem ####################################################
` + targetText + `
### Let's think step by step.

`

const stepwiseTargetText = `
### question ####################################################
` + targetText + `
### Please skip the description and just print out evidence.

Let's think step by step and generate evidence.

`

const directTargetText = `
### question ####################################################
` + targetText

var (
	exemplarTmpl       = template.Must(template.New("exemplar").Parse(exemplarText))
	jsonTargetTmpl     = template.Must(template.New("json_target").Parse(jsonTargetText))
	stepwiseTargetTmpl = template.Must(template.New("stepwise_target").Parse(stepwiseTargetText))
	directTargetTmpl   = template.Must(template.New("direct_target").Parse(directTargetText))
)
