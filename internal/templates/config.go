package templates

import "os"

const configTemplate = `
port: 8881
host: localhost
environment: dev
filesystem_type: local

db:
  driver: sqlite
  auto_migrate: true

generation:
  workers: 4
  timeout: 5m
  queue_size: 256
  max_reference_edge: 1024

references:
  limit: 4
  max_upload_bytes: 10485760

openai:
  analysis_model: gpt-4o
  image_model: dall-e-2

# s3:
#   endpoint_url: ""
#   region_name: ""
#   bucket_name: ""
#   folder: "public"
#   public_url: ""

# pulsar:
#   url: "pulsar://localhost:6650"
`

const envTemplate = `# STUDIO_OPENAI_API_KEY=
# STUDIO_S3_ACCESS_KEY=
# STUDIO_S3_SECRET_KEY=
# STUDIO_DB_DSN=
`

func GetConfigTemplate() string {
	return configTemplate
}

func GetEnvTemplate() string {
	return envTemplate
}

func WriteConfig(path string) error {
	return write(path, GetConfigTemplate())
}

func WriteEnv(path string) error {
	return write(path, GetEnvTemplate())
}

func write(path, content string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(content)
	if err != nil {
		return err
	}

	return nil
}
